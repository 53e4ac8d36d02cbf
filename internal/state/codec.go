package state

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Sections is the whole persisted document: section -> key -> value.
type Sections map[string]map[string]string

// Codec encodes the persisted document.
type Codec interface {
	Name() string
	Marshal(Sections) ([]byte, error)
	Unmarshal([]byte) (Sections, error)
}

// CodecFor returns the codec for a configured format name.
func CodecFor(format string) (Codec, error) {
	switch format {
	case "yaml", "":
		return YAMLCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unknown state format %q", format)
}

// YAMLCodec stores state as human-editable YAML.
type YAMLCodec struct{}

func (YAMLCodec) Name() string { return "yaml" }

func (YAMLCodec) Marshal(s Sections) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (YAMLCodec) Unmarshal(data []byte) (Sections, error) {
	var s Sections
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// MsgpackCodec stores state compactly.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Marshal(s Sections) ([]byte, error) {
	return msgpack.Marshal(s)
}

func (MsgpackCodec) Unmarshal(data []byte) (Sections, error) {
	var s Sections
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s, nil
}
