package porcupine

import "fmt"

func formatPair(input, output interface{}) string {
	return fmt.Sprintf("%v -> %v", input, output)
}

func formatValue(state interface{}) string {
	return fmt.Sprintf("%v", state)
}
