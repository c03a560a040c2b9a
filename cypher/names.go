package cypher

// Parameter and column names shared by the generated statements and the code
// that binds their parameters and reads their rows.
const (
	RootNodeName = "n"

	NameOfSynthesizedRootNode      = "__sn__"
	NameOfSynthesizedRelationships = "__sr__"
	NameOfSynthesizedRelatedNodes  = "__srn__"
	NameOfPaths                    = "__p__"

	NameOfLabels           = "__nodeLabels__"
	NameOfElementID        = "__elementId__"
	NameOfInternalID       = "__internalId__"
	NameOfRelationship     = "__relationship__"
	NameOfRelationshipType = "__relationshipType__"
	NameOfOperation        = "__op__"
	NameOfDeleted          = "__deleted__"
	NameOfCount            = "__count__"

	NameOfProperties         = "__properties__"
	NameOfID                 = "__id__"
	NameOfVersion            = "__version__"
	NameOfEntities           = "__entities__"
	NameOfRelationships      = "__relationships__"
	NameOfKnownRelationships = "__knownRelationshipIds__"
	NameOfStaticLabels       = "__staticLabels__"
	NameOfIDs                = "__ids__"
	FromID                   = "fromId"
	ToID                     = "toId"

	OperationCreated = "created"
	OperationUpdated = "updated"
)
