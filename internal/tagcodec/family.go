package tagcodec

import (
	"fmt"
	"strings"
)

// ModuleFamily identifies the vendor UHF module variant. The family decides
// how the reader reports RSSI.
type ModuleFamily int

const (
	FamilyUM ModuleFamily = iota + 1
	FamilyRM
	FamilySLR
	FamilyGX
)

var familyNames = map[ModuleFamily]string{
	FamilyUM:  "UM",
	FamilyRM:  "RM",
	FamilySLR: "SLR",
	FamilyGX:  "GX",
}

func (f ModuleFamily) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// Valid reports whether f is one of the known families.
func (f ModuleFamily) Valid() bool {
	_, ok := familyNames[f]
	return ok
}

// wrapsRSSI reports whether the family sends RSSI as a two byte wrapped hex pair.
func (f ModuleFamily) wrapsRSSI() bool {
	return f == FamilyUM || f == FamilyRM
}

// ParseModuleFamily accepts UM, RM, SLR or GX, case-insensitive, with an
// optional _MODULE suffix.
func ParseModuleFamily(raw string) (ModuleFamily, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	name = strings.TrimSuffix(name, "_MODULE")
	for family, known := range familyNames {
		if name == known {
			return family, nil
		}
	}
	return 0, fmt.Errorf("unknown module family %q", raw)
}

func (f ModuleFamily) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("unknown module family %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *ModuleFamily) UnmarshalText(text []byte) error {
	parsed, err := ParseModuleFamily(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
