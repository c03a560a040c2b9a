package schema

// ContainsPossibleCircles reports whether following the relationships
// accepted by filter from e can lead back to an entity already on the current
// path. Each branch carries its own copy of the path, so two branches that
// reach the same leaf type are not a circle.
func (e *EntityDescriptor) ContainsPossibleCircles(filter PropertyFilter) bool {
	return e.circleFrom(filter, map[*EntityDescriptor]bool{e: true})
}

func (e *EntityDescriptor) circleFrom(filter PropertyFilter, onPath map[*EntityDescriptor]bool) bool {
	for _, rel := range e.RelationshipsInHierarchy(filter) {
		target := rel.target
		if target == nil {
			continue
		}
		for visited := range onPath {
			if sameHierarchy(visited, target) {
				return true
			}
		}
		branch := make(map[*EntityDescriptor]bool, len(onPath)+1)
		for k := range onPath {
			branch[k] = true
		}
		branch[target] = true
		if target.circleFrom(filter.Nested(rel.fieldName), branch) {
			return true
		}
	}
	return false
}
