package reddit

// page is the part of a listing payload pagination needs.
type page struct {
	After    string
	Children []any
}

func pageOf(payload map[string]any) page {
	data, ok := payload["data"].(map[string]any)
	if !ok {
		return page{}
	}
	after, _ := data["after"].(string)
	children, _ := data["children"].([]any)
	return page{After: after, Children: children}
}
