package domain

import "slices"

// ProjectModule is one toggleable project feature.
type ProjectModule struct {
	Key     string
	Name    string
	Enabled bool
}

var moduleNames = map[string]string{
	"epics":  "Epics",
	"scrum":  "Scrum",
	"kanban": "Kanban",
	"issues": "Issues",
	"wiki":   "Wiki",
	"meetup": "Meet Up",
}

var moduleOrder = []string{"epics", "scrum", "kanban", "issues", "wiki", "meetup"}

// DefaultModules returns the module list seeded into new projects.
func DefaultModules() []ProjectModule {
	out := make([]ProjectModule, 0, len(moduleOrder))
	for _, key := range moduleOrder {
		out = append(out, ProjectModule{
			Key:     key,
			Name:    moduleNames[key],
			Enabled: key == "kanban" || key == "scrum",
		})
	}
	return out
}

// ValidateModules checks every key is known and fills missing display names.
func ValidateModules(in []ProjectModule) ([]ProjectModule, error) {
	out := make([]ProjectModule, 0, len(in))
	for _, m := range in {
		name, ok := moduleNames[m.Key]
		if !ok {
			return nil, ErrInvalidModule
		}
		if m.Name == "" {
			m.Name = name
		}
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b ProjectModule) int {
		return slices.Index(moduleOrder, a.Key) - slices.Index(moduleOrder, b.Key)
	})
	return out, nil
}
