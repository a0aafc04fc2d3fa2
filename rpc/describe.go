// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var describeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "method_type", Type: arrow.BinaryTypes.String},
	{Name: "doc", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "params_schema_ipc", Type: arrow.BinaryTypes.Binary},
	{Name: "param_types_json", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "param_defaults_json", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "param_docs_json", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// Describe metadata keys.
const (
	MetaProtocolName    = "vgi_rpc.protocol_name"
	MetaDescribeVersion = "vgi_rpc.describe_version"
	DescribeVersion     = "2"
)

// serializeSchema serializes an Arrow schema to IPC stream bytes.
func serializeSchema(schema *arrow.Schema) []byte {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	w.Close()
	return buf.Bytes()
}

// buildDescribeBatch builds the __describe__ result, one row per method.
func (s *Server) buildDescribeBatch() arrow.RecordBatch {
	mem := memory.NewGoAllocator()

	b := array.NewRecordBuilder(mem, describeSchema)
	defer b.Release()
	nameB := b.Field(0).(*array.StringBuilder)
	typeB := b.Field(1).(*array.StringBuilder)
	docB := b.Field(2).(*array.StringBuilder)
	paramsB := b.Field(3).(*array.BinaryBuilder)
	typesB := b.Field(4).(*array.StringBuilder)
	defaultsB := b.Field(5).(*array.StringBuilder)
	docsB := b.Field(6).(*array.StringBuilder)

	appendJSON := func(sb *array.StringBuilder, v any, empty bool) {
		if empty {
			sb.AppendNull()
			return
		}
		data, err := json.Marshal(v)
		if err != nil {
			s.logger.Error("describe: marshal failed", "err", err)
			sb.AppendNull()
			return
		}
		sb.Append(string(data))
	}

	for _, d := range s.describeMethods() {
		info, _ := s.method(d.Name)
		nameB.Append(d.Name)
		typeB.Append(d.MethodType)
		if d.Doc != "" {
			docB.Append(d.Doc)
		} else {
			docB.AppendNull()
		}
		paramsB.Append(serializeSchema(info.ParamsSchema))
		appendJSON(typesB, d.ParamTypes, len(d.ParamTypes) == 0)
		appendJSON(defaultsB, d.ParamDefaults, len(d.ParamDefaults) == 0)
		appendJSON(docsB, d.ParamDocs, len(d.ParamDocs) == 0)
	}

	rec := b.NewRecordBatch()
	meta := arrow.NewMetadata(
		[]string{MetaProtocolName, MetaRequestVersion, MetaDescribeVersion, MetaServerID},
		[]string{s.protocolName(), ProtocolVersion, DescribeVersion, s.serverID},
	)
	defer rec.Release()
	return array.NewRecordBatchWithMetadata(describeSchema, rec.Columns(), rec.NumRows(), meta)
}

// describeMethods lists registered methods sorted by name, with defaults
// coerced to their parameter types.
func (s *Server) describeMethods() []MethodDescription {
	names := s.availableMethods()
	out := make([]MethodDescription, 0, len(names))
	for _, name := range names {
		info, ok := s.method(name)
		if !ok {
			continue
		}
		d := MethodDescription{
			Name:       name,
			MethodType: "unary",
			Doc:        info.Doc,
			ParamTypes: make(map[string]string, info.ParamsSchema.NumFields()),
			ParamDocs:  info.ParamDocs,
		}
		for _, f := range info.ParamsSchema.Fields() {
			d.ParamTypes[f.Name] = arrowTypeToString(f.Type)
		}
		d.ParamDefaults = make(map[string]any, len(info.ParamDefaults))
		for k, v := range info.ParamDefaults {
			d.ParamDefaults[k] = coerceDefaultValue(v, info.ParamsSchema, k)
		}
		out = append(out, d)
	}
	return out
}

func (s *Server) protocolName() string {
	if s.serviceName != "" {
		return s.serviceName
	}
	return "GoRpcServer"
}

func (s *Server) writeDescribe(w io.Writer) error {
	batch := s.buildDescribeBatch()
	defer batch.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(describeSchema))
	if err := writer.Write(batch); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// coerceDefaultValue converts a string default to its JSON type.
func coerceDefaultValue(val string, schema *arrow.Schema, fieldName string) any {
	indices := schema.FieldIndices(fieldName)
	if len(indices) == 0 {
		return val
	}
	switch schema.Field(indices[0]).Type.ID() {
	case arrow.INT64, arrow.INT32:
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			return v
		}
	case arrow.FLOAT64, arrow.FLOAT32:
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			return v
		}
	case arrow.BOOL:
		if v, err := strconv.ParseBool(val); err == nil {
			return v
		}
	}
	return val
}

// arrowTypeToString returns a readable type name.
func arrowTypeToString(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.STRING:
		return "string"
	case arrow.INT64:
		return "int"
	case arrow.FLOAT64:
		return "float"
	case arrow.BOOL:
		return "bool"
	case arrow.BINARY:
		return "bytes"
	case arrow.LIST:
		return "list[" + arrowTypeToString(dt.(*arrow.ListType).Elem()) + "]"
	case arrow.MAP:
		mt := dt.(*arrow.MapType)
		return "dict[" + arrowTypeToString(mt.KeyType()) + ", " + arrowTypeToString(mt.ItemType()) + "]"
	default:
		return dt.String()
	}
}

// MethodDescription is one row of a __describe__ response.
type MethodDescription struct {
	Name          string
	MethodType    string
	Doc           string
	ParamTypes    map[string]string
	ParamDefaults map[string]any
	ParamDocs     map[string]string
}

// ParseDescribe decodes a __describe__ result batch.
func ParseDescribe(rec arrow.RecordBatch) ([]MethodDescription, error) {
	if rec.NumCols() < int64(describeSchema.NumFields()) {
		return nil, fmt.Errorf("describe batch has %d columns, want %d", rec.NumCols(), describeSchema.NumFields())
	}
	name, ok1 := rec.Column(0).(*array.String)
	mtype, ok2 := rec.Column(1).(*array.String)
	doc, ok3 := rec.Column(2).(*array.String)
	types, ok4 := rec.Column(4).(*array.String)
	defaults, ok5 := rec.Column(5).(*array.String)
	docs, ok6 := rec.Column(6).(*array.String)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return nil, fmt.Errorf("describe batch has unexpected column types")
	}

	out := make([]MethodDescription, rec.NumRows())
	for i := range out {
		d := MethodDescription{Name: name.Value(i), MethodType: mtype.Value(i)}
		if doc.IsValid(i) {
			d.Doc = doc.Value(i)
		}
		if types.IsValid(i) {
			if err := json.Unmarshal([]byte(types.Value(i)), &d.ParamTypes); err != nil {
				return nil, fmt.Errorf("method %s param types: %w", d.Name, err)
			}
		}
		if defaults.IsValid(i) {
			if err := json.Unmarshal([]byte(defaults.Value(i)), &d.ParamDefaults); err != nil {
				return nil, fmt.Errorf("method %s param defaults: %w", d.Name, err)
			}
		}
		if docs.IsValid(i) {
			if err := json.Unmarshal([]byte(docs.Value(i)), &d.ParamDocs); err != nil {
				return nil, fmt.Errorf("method %s param docs: %w", d.Name, err)
			}
		}
		out[i] = d
	}
	return out, nil
}
