package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"subforge-go/internal/processor"
	"subforge-go/internal/types"
)

func readItems(path string) ([]types.SubtitleItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	// accept a bare array or a previous run's result document
	var doc struct {
		Items []types.SubtitleItem `json:"items"`
	}
	if err := json.Unmarshal(data, &doc.Items); err != nil {
		if err2 := json.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("parse items %s: %w", path, err)
		}
	}
	if len(doc.Items) == 0 {
		return nil, fmt.Errorf("%s holds no subtitle items", path)
	}
	return doc.Items, nil
}

// readRequest loads a regeneration request:
//
//	mode: proofread
//	batches: [2, 3, 4]
//	comments:
//	  3: check speaker names
func readRequest(path string) (processor.Request, error) {
	var req processor.Request
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read request: %w", err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse request %s: %w", path, err)
	}
	return req, nil
}

// writeResult writes to path atomically, or to w when path is empty.
func writeResult(path string, w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
