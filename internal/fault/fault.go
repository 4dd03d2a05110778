package fault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/sunsavvy/internal/common"
)

// Label is a panel condition reported by the classifier.
type Label string

const (
	LabelBirdDrop         Label = "Bird-drop"
	LabelClean            Label = "Clean"
	LabelDusty            Label = "Dusty"
	LabelElectricalDamage Label = "Electrical-damage"
	LabelPhysicalDamage   Label = "Physical-Damage"
	LabelSnowCovered      Label = "Snow-Covered"
	LabelUnknown          Label = "Unknown"
)

var (
	// ErrClassifierUnavailable means no classifier is configured or it failed.
	ErrClassifierUnavailable = errors.New("fault classifier unavailable")
	// ErrEmptyImage is returned for a zero-length upload.
	ErrEmptyImage = errors.New("image is empty")
)

type guidance struct {
	display        string
	description    string
	recommendation string
}

var catalogue = map[Label]guidance{
	LabelBirdDrop: {
		display:        "Bird Drop",
		description:    "Bird droppings detected. This can create hot spots and reduce efficiency.",
		recommendation: "Clean the panel with water and a soft sponge.",
	},
	LabelClean: {
		display:        "Clean",
		description:    "Panel appears clean and in good condition.",
		recommendation: "Continue regular monitoring.",
	},
	LabelDusty: {
		display:        "Dusty",
		description:    "Dust accumulation detected. Cleaning is recommended to restore efficiency.",
		recommendation: "Wash the panels with water.",
	},
	LabelElectricalDamage: {
		display:        "Electrical Damage",
		description:    "Potential electrical damage detected. Professional inspection required immediately.",
		recommendation: "Contact a certified solar technician for inspection.",
	},
	LabelPhysicalDamage: {
		display:        "Physical Damage",
		description:    "Physical damage (cracks/breakage) detected. Panel may need replacement.",
		recommendation: "Contact your installer for warranty or replacement options.",
	},
	LabelSnowCovered: {
		display:        "Snow Covered",
		description:    "Snow coverage detected. Remove snow to restore power generation.",
		recommendation: "Carefully remove snow using a soft roof rake.",
	},
}

// Normalize maps a raw classifier label onto a known Label.
func Normalize(raw string) Label {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return LabelUnknown
	case common.HasAny(s, "bird"):
		return LabelBirdDrop
	case common.HasAny(s, "snow"):
		return LabelSnowCovered
	case common.HasAny(s, "electric"):
		return LabelElectricalDamage
	case common.HasAny(s, "physical", "crack", "broken"):
		return LabelPhysicalDamage
	case common.HasAny(s, "dust", "dirt", "soil"):
		return LabelDusty
	case common.HasAny(s, "clean"):
		return LabelClean
	default:
		return LabelUnknown
	}
}

// Prediction is the raw classifier output.
type Prediction struct {
	Label      string
	Confidence float64
}

// Classifier is the opaque image classification boundary.
type Classifier interface {
	Classify(ctx context.Context, filename string, image io.Reader) (Prediction, error)
}

// Detection is a classified image with user guidance attached.
type Detection struct {
	FaultType      Label   `json:"faultType"`
	Display        string  `json:"display"`
	Confidence     float64 `json:"confidence"`
	Description    string  `json:"description"`
	Recommendation string  `json:"recommendation"`
	Healthy        bool    `json:"healthy"`
}

// Describe attaches catalogue text to a prediction.
func Describe(p Prediction) Detection {
	label := Normalize(p.Label)
	g, ok := catalogue[label]
	if !ok {
		g = guidance{
			display:        string(LabelUnknown),
			description:    "Analysis complete.",
			recommendation: "Regular maintenance recommended.",
		}
	}
	return Detection{
		FaultType:      label,
		Display:        g.display,
		Confidence:     min(max(p.Confidence, 0), 1),
		Description:    g.description,
		Recommendation: g.recommendation,
		Healthy:        label == LabelClean,
	}
}

// Detector runs uploads through a Classifier.
type Detector struct {
	classifier Classifier
	log        logrus.FieldLogger
}

// NewDetector creates a detector. A nil classifier makes every call fail with
// ErrClassifierUnavailable.
func NewDetector(classifier Classifier, log logrus.FieldLogger) *Detector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Detector{classifier: classifier, log: log}
}

// Enabled reports whether a classifier is configured.
func (d *Detector) Enabled() bool {
	return d != nil && d.classifier != nil
}

// Detect classifies one image.
func (d *Detector) Detect(ctx context.Context, filename string, size int64, image io.Reader) (Detection, error) {
	if !d.Enabled() {
		return Detection{}, ErrClassifierUnavailable
	}
	if size == 0 {
		return Detection{}, ErrEmptyImage
	}

	p, err := d.classifier.Classify(ctx, filename, image)
	if err != nil {
		d.log.WithFields(logrus.Fields{"file": filename, "error": err}).Warn("fault classification failed")
		return Detection{}, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	det := Describe(p)
	d.log.WithFields(logrus.Fields{"file": filename, "fault": det.FaultType, "confidence": det.Confidence}).Info("fault classified")
	return det, nil
}
