package privacy

// Entity is one sensitive value found in the original text. Start and End
// are rune offsets.
type Entity struct {
	OriginalValue string     `json:"-"` // never serialized
	Type          EntityType `json:"entity_type"`
	Start         int        `json:"start"`
	End           int        `json:"end"`
	Confidence    float64    `json:"confidence"`
}

// Mapping binds a placeholder token to the entity it stands for.
type Mapping struct {
	Placeholder string `json:"placeholder"`
	Entity      Entity `json:"entity"`
}

// Finding summarizes detections of one entity type without exposing values.
type Finding struct {
	EntityType   EntityType `json:"entity_type"`
	Count        int        `json:"count"`
	Placeholders []string   `json:"placeholders"`
}
