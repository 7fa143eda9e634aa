package runtime

import "fmt"

// Flatten normalizes a model's native output container into one flat float32
// vector, whatever the nesting of the container happens to be.
func Flatten(out Output) ([]float32, error) {
	var vec []float32
	if err := appendFlat(&vec, out); err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty model output")
	}
	return vec, nil
}

func appendFlat(vec *[]float32, value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case float32:
		*vec = append(*vec, v)
	case float64:
		*vec = append(*vec, float32(v))
	case int:
		*vec = append(*vec, float32(v))
	case []float32:
		*vec = append(*vec, v...)
	case []float64:
		for _, f := range v {
			*vec = append(*vec, float32(f))
		}
	case []int:
		for _, n := range v {
			*vec = append(*vec, float32(n))
		}
	case [][]float32:
		for _, inner := range v {
			*vec = append(*vec, inner...)
		}
	case [][]float64:
		for _, inner := range v {
			if err := appendFlat(vec, inner); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, inner := range v {
			if err := appendFlat(vec, inner); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported model output element: %T", value)
	}
	return nil
}
