// Package forms models HTML form fields and the helpers used to style,
// validate and clean them before rendering.
package forms

// Widget identifies how a field is rendered.
type Widget int

const (
	WidgetText Widget = iota
	WidgetEmail
	WidgetPassword
	WidgetTextarea
	WidgetURL
	WidgetCheckbox
	WidgetSelect
	WidgetHidden
)

// String returns the HTML input type of the widget. Textarea and select are
// rendered by their own elements.
func (w Widget) String() string {
	switch w {
	case WidgetEmail:
		return "email"
	case WidgetPassword:
		return "password"
	case WidgetTextarea:
		return "textarea"
	case WidgetURL:
		return "url"
	case WidgetCheckbox:
		return "checkbox"
	case WidgetSelect:
		return "select"
	case WidgetHidden:
		return "hidden"
	default:
		return "text"
	}
}

// textStyle reports whether the widget accepts free text input.
func (w Widget) textStyle() bool {
	switch w {
	case WidgetText, WidgetEmail, WidgetPassword, WidgetTextarea, WidgetURL:
		return true
	}
	return false
}

// Field is one input of a Form.
type Field struct {
	Name   string
	Label  string
	Widget Widget
	Attrs  map[string]string
	Value  string
	Error  string

	// TextStyle marks free text inputs. Styling helpers only touch these.
	TextStyle bool
}

// NewField builds a field and derives its TextStyle capability from widget.
func NewField(name, label string, widget Widget) *Field {
	return &Field{
		Name:      name,
		Label:     label,
		Widget:    widget,
		Attrs:     map[string]string{},
		TextStyle: widget.textStyle(),
	}
}

// SetAttr sets one HTML attribute.
func (f *Field) SetAttr(key, value string) {
	if f.Attrs == nil {
		f.Attrs = map[string]string{}
	}
	f.Attrs[key] = value
}

// InputType is the value of the type attribute for <input> widgets.
func (f *Field) InputType() string {
	return f.Widget.String()
}
