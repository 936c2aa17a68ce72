package detect

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Labels resolves class indices to names.
type Labels []string

// Name returns the label for id, or a synthetic "class_<id>" for ids outside the table.
func (l Labels) Name(id int) string {
	if id >= 0 && id < len(l) {
		return l[id]
	}
	return "class_" + strconv.Itoa(id)
}

// COCOLabels are the 80 classes used by the stock YOLO checkpoints.
var COCOLabels = Labels{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog",
	"horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone",
	"microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors",
	"teddy bear", "hair drier", "toothbrush",
}

// LoadLabels reads a YOLO dataset file. Both forms of the names key are accepted:
//
//	names: [person, bicycle]
//	names: {0: person, 1: bicycle}
func LoadLabels(path string) (Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels file: %w", err)
	}
	return ParseLabels(data)
}

// maxClassID bounds ids in the map form, which sizes the label table.
const maxClassID = 100_000

func ParseLabels(data []byte) (Labels, error) {
	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}

	switch doc.Names.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := doc.Names.Decode(&names); err != nil {
			return nil, fmt.Errorf("decode names list: %w", err)
		}
		return Labels(names), nil
	case yaml.MappingNode:
		var byID map[int]string
		if err := doc.Names.Decode(&byID); err != nil {
			return nil, fmt.Errorf("decode names map: %w", err)
		}
		size := 0
		for id := range byID {
			if id < 0 {
				return nil, fmt.Errorf("negative class id %d", id)
			}
			if id > maxClassID {
				return nil, fmt.Errorf("class id %d exceeds %d", id, maxClassID)
			}
			size = max(size, id+1)
		}
		labels := make(Labels, size)
		for i := range labels {
			labels[i] = "class_" + strconv.Itoa(i)
		}
		for id, name := range byID {
			labels[id] = name
		}
		return labels, nil
	default:
		return nil, fmt.Errorf("labels file has no names list")
	}
}
