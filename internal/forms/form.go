package forms

// Form holds fields in declaration order.
type Form struct {
	fields []*Field
	index  map[string]*Field
	// Errors not tied to a single field.
	NonFieldErrors []string
}

// New creates a form from fields.
func New(fields ...*Field) *Form {
	f := &Form{index: make(map[string]*Field, len(fields))}
	for _, field := range fields {
		f.Add(field)
	}
	return f
}

// Add appends field, replacing an existing field with the same name in place.
func (f *Form) Add(field *Field) {
	if existing, ok := f.index[field.Name]; ok {
		for i, candidate := range f.fields {
			if candidate == existing {
				f.fields[i] = field
			}
		}
	} else {
		f.fields = append(f.fields, field)
	}
	f.index[field.Name] = field
}

// Fields returns the fields in declaration order.
func (f *Form) Fields() []*Field {
	return f.fields
}

// Field returns the named field or nil.
func (f *Form) Field(name string) *Field {
	return f.index[name]
}

// Value returns the current value of the named field.
func (f *Form) Value(name string) string {
	if field := f.index[name]; field != nil {
		return field.Value
	}
	return ""
}

// Bind copies submitted values onto the fields. Missing names reset the value.
func (f *Form) Bind(get func(name string) string) {
	for _, field := range f.fields {
		field.Value = get(field.Name)
		field.Error = ""
	}
	f.NonFieldErrors = nil
}

// AddError attaches msg to the named field, or to the form when no field matches.
func (f *Form) AddError(name, msg string) {
	if field := f.index[name]; field != nil {
		field.Error = msg
		return
	}
	f.NonFieldErrors = append(f.NonFieldErrors, msg)
}

// Valid reports whether no errors are attached.
func (f *Form) Valid() bool {
	if len(f.NonFieldErrors) > 0 {
		return false
	}
	for _, field := range f.fields {
		if field.Error != "" {
			return false
		}
	}
	return true
}
