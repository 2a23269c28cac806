package store

import (
	"encoding/json"
	"fmt"
)

// marshalLabels encodes a label set as a JSON array for storage. A nil
// set encodes as [] so the column stays non-null.
func marshalLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("failed to encode labels: %w", err)
	}
	return string(data), nil
}

// unmarshalLabels decodes a stored label set.
func unmarshalLabels(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var labels []string
	if err := json.Unmarshal([]byte(data), &labels); err != nil {
		return nil, fmt.Errorf("failed to decode labels: %w", err)
	}
	return labels, nil
}

// unionLabels merges two label sets preserving first-seen order. Applied
// label sets only ever grow; this is the single place that growth happens
// in the SQL stores.
func unionLabels(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, group := range [][]string{existing, incoming} {
		for _, label := range group {
			if label == "" || seen[label] {
				continue
			}
			seen[label] = true
			merged = append(merged, label)
		}
	}
	return merged
}
