package domain

import "fmt"

// WasteType classifies the material being collected
type WasteType string

const (
	WasteTypePlastic    WasteType = "plastic"
	WasteTypePaper      WasteType = "paper"
	WasteTypeGlass      WasteType = "glass"
	WasteTypeMetal      WasteType = "metal"
	WasteTypeOrganic    WasteType = "organic"
	WasteTypeElectronic WasteType = "electronic"
	WasteTypeMixed      WasteType = "mixed"
)

// AllWasteTypes lists the accepted waste types.
var AllWasteTypes = []WasteType{
	WasteTypePlastic,
	WasteTypePaper,
	WasteTypeGlass,
	WasteTypeMetal,
	WasteTypeOrganic,
	WasteTypeElectronic,
	WasteTypeMixed,
}

// ParseWasteType validates a wire value.
func ParseWasteType(s string) (WasteType, error) {
	for _, w := range AllWasteTypes {
		if string(w) == s {
			return w, nil
		}
	}
	return "", fmt.Errorf("%w: unknown waste type %q", ErrInvalidCollection, s)
}
