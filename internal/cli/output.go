// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securestore.
//
// go-securestore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-securestore/pkg/storeerror"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error. Classified errors include their kind and
// whether retrying can help.
func (p *Printer) PrintError(err error) error {
	var classified *storeerror.Error
	isClassified := errors.As(err, &classified)

	switch p.format {
	case OutputFormatJSON:
		out := map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
		if isClassified {
			out["kind"] = classified.Kind
			out["reason"] = classified.Reason
			out["resolvable"] = classified.Resolvable
		}
		return p.printJSON(out)
	default:
		if isClassified {
			fmt.Fprintf(p.writer, "Error: %s (%s, resolvable: %t)\n", classified.Reason, classified.Kind, classified.Resolvable)
			if classified.Err != nil {
				fmt.Fprintf(p.writer, "Cause: %v\n", classified.Err)
			}
			return nil
		}
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

// PrintValue prints a single named value
func (p *Printer) PrintValue(name, value string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			name: value,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, value)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintList prints a list of values, one per line in text format
func (p *Printer) PrintList(name string, values []string) error {
	switch p.format {
	case OutputFormatJSON:
		if values == nil {
			values = []string{}
		}
		return p.printJSON(map[string]interface{}{
			name: values,
		})
	case OutputFormatText:
		for _, v := range values {
			fmt.Fprintln(p.writer, v)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintExists prints whether an item exists
func (p *Printer) PrintExists(name string, exists bool) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"name":   name,
			"exists": exists,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "%t\n", exists)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintPublicKey prints an exported public key. JWKs are embedded as JSON
// objects in JSON output.
func (p *Printer) PrintPublicKey(format string, key []byte) error {
	switch p.format {
	case OutputFormatJSON:
		var value interface{} = string(key)
		if format == "jwk" {
			value = json.RawMessage(key)
		}
		return p.printJSON(map[string]interface{}{
			"format": format,
			"key":    value,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, string(key))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
