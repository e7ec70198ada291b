package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

var (
	stdout      io.Writer = os.Stdout
	debugWriter io.Writer = os.Stderr
)

// OutputData prints data in the selected format
func OutputData(data interface{}) error {
	switch output {
	case "json":
		return outputJSON(data)
	case "yaml":
		return outputYAML(data)
	case "table":
		return outputTable(data)
	default:
		return fmt.Errorf("unsupported output format: %s", output)
	}
}

func outputJSON(data interface{}) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputYAML(data interface{}) error {
	encoder := yaml.NewEncoder(stdout)
	defer encoder.Close()
	return encoder.Encode(data)
}

func outputTable(data interface{}) error {
	switch v := data.(type) {
	case []map[string]interface{}:
		if len(v) == 0 {
			fmt.Fprintln(stdout, "No results found.")
			return nil
		}
		return printTableFromSlice(v)
	case map[string]interface{}:
		return printTableFromMap(v)
	default:
		m, err := ConvertToMap(data)
		if err != nil {
			return outputJSON(data)
		}
		return printTableFromMap(m)
	}
}

// printTableFromSlice prints rows under the keys of the first row
func printTableFromSlice(items []map[string]interface{}) error {
	headers := sortedKeys(items[0])

	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, strings.ToUpper(strings.Join(headers, "\t")))
	for _, item := range items {
		values := lo.Map(headers, func(h string, _ int) string {
			return formatValue(item[h])
		})
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}
	return nil
}

func printTableFromMap(m map[string]interface{}) error {
	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	defer w.Flush()

	for _, key := range sortedKeys(m) {
		fmt.Fprintf(w, "%s:\t%v\n", key, formatValue(m[key]))
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

func formatValue(v interface{}) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		if len(val) > 60 {
			return val[:57] + "..."
		}
		return val
	case bool:
		if val {
			return "✓"
		}
		return "✗"
	case float64:
		return fmt.Sprintf("%.0f", val)
	case []interface{}:
		items := lo.Map(val, func(item interface{}, _ int) string {
			return fmt.Sprintf("%v", item)
		})
		result := "[" + strings.Join(items, ", ") + "]"
		if len(result) > 60 {
			return result[:57] + "..."
		}
		return result
	case []string:
		return formatValue(lo.ToAnySlice(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Fprintf(stdout, "✓ %s\n", message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Fprintf(debugWriter, "⚠ Warning: %s\n", message)
}

// ConvertToMap converts a struct to map[string]interface{}
func ConvertToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}
