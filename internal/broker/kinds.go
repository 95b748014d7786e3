package broker

// KindSpec maps an opportunity type to the fields that vary by kind: which
// field references the parent record, which field carries remaining
// capacity, and whether offers are inherited from the parent when the item
// has none of its own.
type KindSpec struct {
	ParentRefField string
	CapacityField  string
	InheritsOffers bool
}

var kindSpecs = map[string]KindSpec{
	"ScheduledSession": {
		ParentRefField: "superEvent",
		CapacityField:  "remainingAttendeeCapacity",
		InheritsOffers: true,
	},
	"Slot": {
		ParentRefField: "facilityUse",
		CapacityField:  "remainingUses",
		InheritsOffers: false,
	},
}

// kindFor returns the kind mapping for an opportunity type. Unknown types fall back
// to session-like semantics.
func kindFor(documentType string) KindSpec {
	if spec, ok := kindSpecs[documentType]; ok {
		return spec
	}
	return kindSpecs["ScheduledSession"]
}

// extractDocumentID returns a document's own identifier, preferring the
// canonical @id over the legacy id field.
func extractDocumentID(data map[string]interface{}) string {
	if id, ok := data["@id"].(string); ok && id != "" {
		return id
	}
	if id, ok := data["id"].(string); ok && id != "" {
		return id
	}
	return ""
}

// extractDocumentType returns a document's type discriminator.
func extractDocumentType(data map[string]interface{}) string {
	if t, ok := data["@type"].(string); ok && t != "" {
		return t
	}
	if t, ok := data["type"].(string); ok && t != "" {
		return t
	}
	return ""
}

// extractParentRef resolves the parent documentId referenced by a child
// document. The reference may be a plain string or an embedded object
// carrying its own @id. The kind's field is tried first, then the other
// known reference field.
func extractParentRef(data map[string]interface{}, spec KindSpec) string {
	if ref := refDocumentID(data[spec.ParentRefField]); ref != "" {
		return ref
	}
	for _, field := range []string{"superEvent", "facilityUse"} {
		if field == spec.ParentRefField {
			continue
		}
		if ref := refDocumentID(data[field]); ref != "" {
			return ref
		}
	}
	return ""
}

func refDocumentID(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]interface{}:
		return extractDocumentID(v)
	}
	return ""
}
