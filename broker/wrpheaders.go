// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
	"github.com/xmidt-org/wrp-go/v5"
)

const (
	wrpRef      = "wrp."
	headerRef   = "Header."
	metadataRef = "Metadata."
)

// wrpFields reads the named field of a message. Multi-valued fields return
// every value.
var wrpFields = map[string]func(*wrp.Message) []string{
	"Type":            func(m *wrp.Message) []string { return []string{m.Type.String()} },
	"Source":          func(m *wrp.Message) []string { return []string{m.Source} },
	"Destination":     func(m *wrp.Message) []string { return []string{m.Destination} },
	"TransactionUUID": func(m *wrp.Message) []string { return []string{m.TransactionUUID} },
	"ContentType":     func(m *wrp.Message) []string { return []string{m.ContentType} },
	"Accept":          func(m *wrp.Message) []string { return []string{m.Accept} },
	"Path":            func(m *wrp.Message) []string { return []string{m.Path} },
	"ServiceName":     func(m *wrp.Message) []string { return []string{m.ServiceName} },
	"URL":             func(m *wrp.Message) []string { return []string{m.URL} },
	"SessionID":       func(m *wrp.Message) []string { return []string{m.SessionID} },
	"Headers":         func(m *wrp.Message) []string { return m.Headers },
	"PartnerIDs":      func(m *wrp.Message) []string { return m.PartnerIDs },
	"QualityOfService": func(m *wrp.Message) []string {
		return []string{strconv.Itoa(int(m.QualityOfService))}
	},
	"DeviceID": func(m *wrp.Message) []string {
		id, err := wrp.ParseDeviceID(m.Source)
		if err != nil {
			return nil
		}
		return []string{id.ID()}
	},
	"Status": func(m *wrp.Message) []string {
		if m.Status == nil {
			return nil
		}
		return []string{strconv.FormatInt(*m.Status, 10)}
	},
	"RequestDeliveryResponse": func(m *wrp.Message) []string {
		if m.RequestDeliveryResponse == nil {
			return nil
		}
		return []string{strconv.FormatInt(*m.RequestDeliveryResponse, 10)}
	},
}

// wrpField resolves a field reference without its "wrp." prefix:
// a field name, "Header.<name>" for the message's HTTP style headers
// (case-insensitive), or "Metadata.<key>".
func wrpField(m *wrp.Message, field string) []string {
	if name, ok := strings.CutPrefix(field, headerRef); ok {
		var values []string
		for _, h := range m.Headers {
			k, v, found := strings.Cut(h, ":")
			if found && strings.EqualFold(strings.TrimSpace(k), strings.TrimSpace(name)) {
				values = append(values, strings.TrimSpace(v))
			}
		}
		return values
	}

	if key, ok := strings.CutPrefix(field, metadataRef); ok {
		if v := m.Metadata[strings.TrimSpace(key)]; v != "" {
			return []string{v}
		}
		return nil
	}

	if fn, ok := wrpFields[field]; ok {
		return fn(m)
	}
	return nil
}

// validateWRPHeaders rejects references to unknown message fields.
func validateWRPHeaders(headers map[string][]string) error {
	var errs []error
	for key, values := range headers {
		if key == "" {
			errs = append(errs, fmt.Errorf("empty WRP header name"))
		}
		for _, v := range values {
			field, ok := strings.CutPrefix(v, wrpRef)
			if !ok || strings.HasPrefix(field, headerRef) || strings.HasPrefix(field, metadataRef) {
				continue
			}
			if _, known := wrpFields[field]; !known {
				errs = append(errs, fmt.Errorf("header %q references unknown WRP field %q", key, field))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{tether.ErrValidation}, errs...)...)
}

// wrpRecordHeaders builds the record headers for m. Values starting with
// "wrp." are field references and yield one header per non-empty value;
// anything else is a literal. Headers are ordered by name.
func wrpRecordHeaders(headers map[string][]string, m *wrp.Message) []kgo.RecordHeader {
	if len(headers) == 0 {
		return nil
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []kgo.RecordHeader
	for _, key := range keys {
		for _, v := range headers[key] {
			field, ok := strings.CutPrefix(v, wrpRef)
			if !ok {
				out = append(out, kgo.RecordHeader{Key: key, Value: []byte(v)})
				continue
			}
			for _, fv := range wrpField(m, field) {
				if fv != "" {
					out = append(out, kgo.RecordHeader{Key: key, Value: []byte(fv)})
				}
			}
		}
	}
	return out
}
