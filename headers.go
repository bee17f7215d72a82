package querylens

// ShapeHeaders returns the display headers of a result set. Explicit headers are returned unchanged.
// Otherwise the headers are the first document's keys in the order the store returned them.
func ShapeHeaders(docs Documents, explicit []string) []string {
	if explicit != nil {
		return explicit
	}
	if len(docs) == 0 || docs[0] == nil {
		return []string{}
	}
	return docs[0].Keys()
}
