package form

// Field is the render view of one input.
type Field struct {
	Name     string
	Label    string
	Type     string
	Value    string
	Required bool
	Errors   []string
	HelpText []string
}

var fieldMeta = map[string]struct {
	label    string
	kind     string
	required bool
	help     string
}{
	FieldUsername:  {"Username", "text", true, "Required. 150 characters or fewer. Letters, digits and @/./+/-/_ only."},
	FieldFirstName: {"First name", "text", false, ""},
	FieldLastName:  {"Last name", "text", false, ""},
	FieldEmail:     {"Email address", "email", true, ""},
	FieldPassword1: {"Password", "password", true, ""},
	FieldPassword2: {"Password confirmation", "password", true, "Enter the same password as before, for verification."},
}

// Fields returns every input in display order.
func (f *Registration) Fields() []Field {
	fields := make([]Field, 0, len(fieldOrder))
	for _, name := range fieldOrder {
		meta := fieldMeta[name]
		field := Field{
			Name:     name,
			Label:    meta.label,
			Type:     meta.kind,
			Value:    f.Value(name),
			Required: meta.required,
			Errors:   f.Errors(name),
		}
		switch {
		case name == FieldPassword1:
			field.HelpText = f.builder.policy.HelpText()
		case meta.help != "":
			field.HelpText = []string{meta.help}
		}
		fields = append(fields, field)
	}
	return fields
}
