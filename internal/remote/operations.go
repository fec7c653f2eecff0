package remote

import "google.golang.org/api/slides/v1"

// emuUnit is the English Metric Unit used by the Slides API for sizes and offsets.
const emuUnit = "EMU"

// Operation is one edit inside a BatchEdit call.
type Operation interface {
	request() *slides.Request
}

// ReplaceText replaces every occurrence of Search on one slide.
type ReplaceText struct {
	SlideID     string
	Search      string
	Replacement string
}

func (o ReplaceText) request() *slides.Request {
	return &slides.Request{
		ReplaceAllText: &slides.ReplaceAllTextRequest{
			PageObjectIds: []string{o.SlideID},
			ContainsText: &slides.SubstringMatchCriteria{
				Text:      o.Search,
				MatchCase: true,
			},
			ReplaceText: o.Replacement,
			// An empty replacement still has to clear the placeholder.
			ForceSendFields: []string{"ReplaceText"},
		},
	}
}

// Placement positions an image on a slide. Sizes and translations are in EMU.
type Placement struct {
	Width      float64 `yaml:"width"`
	Height     float64 `yaml:"height"`
	ScaleX     float64 `yaml:"scale_x"`
	ScaleY     float64 `yaml:"scale_y"`
	TranslateX float64 `yaml:"translate_x"`
	TranslateY float64 `yaml:"translate_y"`
}

// TitleLogoPlacement is the logo position on the title slide: a 4M EMU box
// scaled to a fifth, in the top right corner.
var TitleLogoPlacement = Placement{
	Width:      4000000,
	Height:     4000000,
	ScaleX:     0.2,
	ScaleY:     0.2,
	TranslateX: 8000000,
	TranslateY: 100000,
}

// InsertImage creates an image element on a slide.
type InsertImage struct {
	ObjectID  string
	SlideID   string
	URL       string
	Placement Placement
}

func (o InsertImage) request() *slides.Request {
	p := o.Placement
	return &slides.Request{
		CreateImage: &slides.CreateImageRequest{
			ObjectId: o.ObjectID,
			Url:      o.URL,
			ElementProperties: &slides.PageElementProperties{
				PageObjectId: o.SlideID,
				Size: &slides.Size{
					Width:  &slides.Dimension{Magnitude: p.Width, Unit: emuUnit},
					Height: &slides.Dimension{Magnitude: p.Height, Unit: emuUnit},
				},
				Transform: &slides.AffineTransform{
					ScaleX:     p.ScaleX,
					ScaleY:     p.ScaleY,
					TranslateX: p.TranslateX,
					TranslateY: p.TranslateY,
					Unit:       emuUnit,
				},
			},
		},
	}
}

// ReplaceShapesWithImage swaps every shape containing Placeholder for the image.
type ReplaceShapesWithImage struct {
	Placeholder string
	URL         string
}

func (o ReplaceShapesWithImage) request() *slides.Request {
	return &slides.Request{
		ReplaceAllShapesWithImage: &slides.ReplaceAllShapesWithImageRequest{
			ImageUrl: o.URL,
			ContainsText: &slides.SubstringMatchCriteria{
				Text:      o.Placeholder,
				MatchCase: true,
			},
			ImageReplaceMethod: "CENTER_INSIDE",
		},
	}
}

// DeleteSlide removes a slide by object id.
type DeleteSlide struct {
	SlideID string
}

func (o DeleteSlide) request() *slides.Request {
	return &slides.Request{
		DeleteObject: &slides.DeleteObjectRequest{
			ObjectId: o.SlideID,
		},
	}
}

// buildRequests converts operations to Slides API requests, keeping their order.
func buildRequests(ops []Operation) []*slides.Request {
	requests := make([]*slides.Request, 0, len(ops))
	for _, op := range ops {
		requests = append(requests, op.request())
	}
	return requests
}
