package models

// ObjectKind is the "type" field of a board object
type ObjectKind string

const (
	KindStroke ObjectKind = "stroke"
	KindShape  ObjectKind = "shape"
	KindText   ObjectKind = "text"
	KindSticky ObjectKind = "sticky"
	KindMedia  ObjectKind = "media"
)

// DrawingPayload is implemented by every known drawing variant.
// Fields flattens the variant into the open field set stored on the board.
type DrawingPayload interface {
	Kind() ObjectKind
	TargetID() string
	Fields() Fields
}

// Point is one sample of a freehand stroke
type Point struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Pressure *float64 `json:"pressure,omitempty"`
}

// StrokePayload is the data of a draw:stroke event
type StrokePayload struct {
	ObjectID string  `json:"objectId,omitempty"`
	Points   []Point `json:"points"`
	Color    string  `json:"color"`
	Size     float64 `json:"size"`
}

func (p StrokePayload) Kind() ObjectKind { return KindStroke }
func (p StrokePayload) TargetID() string { return p.ObjectID }

func (p StrokePayload) Fields() Fields {
	points := p.Points
	if points == nil {
		points = []Point{}
	}
	return Fields{
		FieldType: string(KindStroke),
		"points":  points,
		"color":   p.Color,
		"size":    p.Size,
	}
}

// ShapePayload is the data of a draw:shape event; Type is the shape kind (rect, ellipse, ...)
type ShapePayload struct {
	ObjectID string  `json:"objectId,omitempty"`
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Color    string  `json:"color"`
	Fill     string  `json:"fill"`
}

func (p ShapePayload) Kind() ObjectKind { return KindShape }
func (p ShapePayload) TargetID() string { return p.ObjectID }

func (p ShapePayload) Fields() Fields {
	return Fields{
		FieldType:   string(KindShape),
		"shapeType": p.Type,
		"x":         p.X,
		"y":         p.Y,
		"width":     p.Width,
		"height":    p.Height,
		"color":     p.Color,
		"fill":      p.Fill,
	}
}

// TextPayload is the data of a draw:text event
type TextPayload struct {
	ObjectID string  `json:"objectId,omitempty"`
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	FontSize float64 `json:"fontSize"`
	Color    string  `json:"color"`
}

func (p TextPayload) Kind() ObjectKind { return KindText }
func (p TextPayload) TargetID() string { return p.ObjectID }

func (p TextPayload) Fields() Fields {
	return Fields{
		FieldType:  string(KindText),
		"text":     p.Text,
		"x":        p.X,
		"y":        p.Y,
		"fontSize": p.FontSize,
		"color":    p.Color,
	}
}

// StickyPayload is the data of a draw:sticky event
type StickyPayload struct {
	ObjectID string  `json:"objectId,omitempty"`
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	BgColor  string  `json:"bgColor"`
}

func (p StickyPayload) Kind() ObjectKind { return KindSticky }
func (p StickyPayload) TargetID() string { return p.ObjectID }

func (p StickyPayload) Fields() Fields {
	return Fields{
		FieldType: string(KindSticky),
		"text":    p.Text,
		"x":       p.X,
		"y":       p.Y,
		"bgColor": p.BgColor,
	}
}

// MediaPayload wraps a client-defined media object (image, video, embed).
// Its fields are kept as sent; only "id" is used to target an existing object.
type MediaPayload struct {
	MediaObject Fields `json:"mediaObject"`
}

func (p MediaPayload) Kind() ObjectKind { return KindMedia }
func (p MediaPayload) TargetID() string { return p.MediaObject.String(FieldID) }

func (p MediaPayload) Fields() Fields {
	out := p.MediaObject.Payload()
	if mediaType := out.String(FieldType); mediaType != "" && mediaType != string(KindMedia) {
		out["mediaType"] = mediaType
	}
	out[FieldType] = string(KindMedia)
	return out
}
