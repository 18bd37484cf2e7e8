package store

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/baldhumanity/neuroevo-go/population/tensor"
)

// Tensor files use the SafeTensors layout:
//
//	[8 bytes: header size, uint64 LE]
//	[header: JSON, name -> {dtype, shape, data_offsets}, optional "__metadata__"]
//	[data: raw little-endian float32, tensors in name order]
const (
	metadataKey   = "__metadata__"
	dtypeFloat32  = "F32"
	maxHeaderSize = 64 << 20

	// ModelDescriptorFile and ModelTensorsFile hold an externally-built model.
	ModelDescriptorFile = "model.json"
	ModelTensorsFile    = "weights.tensors"
)

var (
	ErrHeaderTooLarge = errors.New("tensor file header exceeds maximum size")
	ErrBadTensorFile  = errors.New("malformed tensor file")
)

type tensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// WeightsFile and BiasesFile name the per-layer files inside a save directory.
func WeightsFile(layer int) string { return fmt.Sprintf("weights%d.tensor", layer) }
func BiasesFile(layer int) string  { return fmt.Sprintf("biases%d.tensor", layer) }

// WriteTensors writes named tensors to w. Tensors are laid out in name order.
func WriteTensors(w io.Writer, tensors map[string]*tensor.Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if name == metadataKey {
			return fmt.Errorf("%w: reserved tensor name %q", ErrBadTensorFile, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]interface{}, len(names)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var offset int64
	for _, name := range names {
		t := tensors[name]
		size := int64(len(t.Data)) * 4
		shape := make([]int64, len(t.Shape))
		for i, dim := range t.Shape {
			shape[i] = int64(dim)
		}
		header[name] = tensorHeader{DType: dtypeFloat32, Shape: shape, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	buf := make([]byte, 4)
	for _, name := range names {
		for _, v := range tensors[name].Data {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := bw.Write(buf); err != nil {
				return fmt.Errorf("failed to write tensor %s: %w", name, err)
			}
		}
	}
	return bw.Flush()
}

// ReadTensors reads a tensor file written by WriteTensors.
func ReadTensors(r io.Reader) (map[string]*tensor.Tensor, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > maxHeaderSize {
		return nil, nil, ErrHeaderTooLarge
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadTensorFile, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	var metadata map[string]string
	tensors := make(map[string]*tensor.Tensor, len(raw))
	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &metadata); err != nil {
				return nil, nil, fmt.Errorf("%w: metadata: %v", ErrBadTensorFile, err)
			}
			continue
		}
		var h tensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, nil, fmt.Errorf("%w: tensor %q: %v", ErrBadTensorFile, name, err)
		}
		t, err := decodeTensor(name, h, data)
		if err != nil {
			return nil, nil, err
		}
		tensors[name] = t
	}
	return tensors, metadata, nil
}

func decodeTensor(name string, h tensorHeader, data []byte) (*tensor.Tensor, error) {
	if h.DType != dtypeFloat32 {
		return nil, fmt.Errorf("%w: tensor %q has unsupported dtype %s", ErrBadTensorFile, name, h.DType)
	}
	start, end := h.DataOffsets[0], h.DataOffsets[1]
	if start < 0 || end < start || end > int64(len(data)) {
		return nil, fmt.Errorf("%w: tensor %q offsets [%d,%d) outside data of %d bytes", ErrBadTensorFile, name, start, end, len(data))
	}
	// Each dimension is bounded by what the byte range can still hold, so the
	// running product never overflows.
	limit := (end - start) / 4
	elems := int64(1)
	shape := make(tensor.Shape, len(h.Shape))
	for i, dim := range h.Shape {
		if dim <= 0 || dim > limit/elems {
			return nil, fmt.Errorf("%w: tensor %q shape %v does not fit %d bytes", ErrBadTensorFile, name, h.Shape, end-start)
		}
		elems *= dim
		shape[i] = int(dim)
	}
	if elems*4 != end-start {
		return nil, fmt.Errorf("%w: tensor %q shape %v does not match %d bytes", ErrBadTensorFile, name, shape, end-start)
	}
	values := make([]float32, elems)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[start+int64(i)*4:]))
	}
	return tensor.FromData(shape, values)
}

// WriteTensorFile writes tensors to path, replacing any existing file.
func WriteTensorFile(path string, tensors map[string]*tensor.Tensor, metadata map[string]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create tensor file '%s': %w", path, err)
	}
	if err := WriteTensors(file, tensors, metadata); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write tensor file '%s': %w", path, err)
	}
	return file.Close()
}

// ReadTensorFile reads a tensor file from path.
func ReadTensorFile(path string) (map[string]*tensor.Tensor, map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open tensor file '%s': %w", path, err)
	}
	defer file.Close()
	return ReadTensors(bufio.NewReader(file))
}

// SaveLayers writes one weights file and one biases file per layer into dir.
func SaveLayers(dir string, weights, biases []*tensor.Tensor) error {
	if len(weights) != len(biases) {
		return fmt.Errorf("layer count mismatch: %d weights, %d biases", len(weights), len(biases))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create save directory '%s': %w", dir, err)
	}
	for i := range weights {
		if err := WriteTensorFile(filepath.Join(dir, WeightsFile(i)), map[string]*tensor.Tensor{"data": weights[i]}, nil); err != nil {
			return err
		}
		if err := WriteTensorFile(filepath.Join(dir, BiasesFile(i)), map[string]*tensor.Tensor{"data": biases[i]}, nil); err != nil {
			return err
		}
	}
	logger.Debug("saved layers", zap.String("dir", dir), zap.Int("layers", len(weights)))
	return nil
}

// LoadLayers reads consecutive weightsN/biasesN files from dir until the next
// index is missing.
func LoadLayers(dir string) (weights, biases []*tensor.Tensor, err error) {
	for i := 0; ; i++ {
		wPath := filepath.Join(dir, WeightsFile(i))
		if _, statErr := os.Stat(wPath); errors.Is(statErr, os.ErrNotExist) {
			break
		}
		w, err := readSingle(wPath)
		if err != nil {
			return nil, nil, err
		}
		b, err := readSingle(filepath.Join(dir, BiasesFile(i)))
		if err != nil {
			return nil, nil, err
		}
		weights = append(weights, w)
		biases = append(biases, b)
	}
	if len(weights) == 0 {
		return nil, nil, fmt.Errorf("no layer files found in '%s'", dir)
	}
	return weights, biases, nil
}

// HasLayers reports whether dir contains native per-layer files.
func HasLayers(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, WeightsFile(0)))
	return err == nil
}

// HasModel reports whether dir contains an externally-built model export.
func HasModel(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ModelDescriptorFile))
	return err == nil
}

func readSingle(path string) (*tensor.Tensor, error) {
	tensors, _, err := ReadTensorFile(path)
	if err != nil {
		return nil, err
	}
	t, ok := tensors["data"]
	if !ok || len(tensors) != 1 {
		return nil, fmt.Errorf("%w: '%s' must hold exactly one tensor named data", ErrBadTensorFile, path)
	}
	return t, nil
}

// SaveModel writes an opaque model descriptor and its ordered tensor list into dir.
func SaveModel(dir string, descriptor []byte, tensors []*tensor.Tensor) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create save directory '%s': %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, ModelDescriptorFile), descriptor, 0o644); err != nil {
		return fmt.Errorf("failed to write model descriptor: %w", err)
	}
	named := make(map[string]*tensor.Tensor, len(tensors))
	for i, t := range tensors {
		named[tensorName(i)] = t
	}
	meta := map[string]string{"count": fmt.Sprint(len(tensors))}
	if err := WriteTensorFile(filepath.Join(dir, ModelTensorsFile), named, meta); err != nil {
		return err
	}
	logger.Debug("saved model", zap.String("dir", dir), zap.Int("tensors", len(tensors)))
	return nil
}

// LoadModel reads a model written by SaveModel, returning tensors in their original order.
func LoadModel(dir string) ([]byte, []*tensor.Tensor, error) {
	descriptor, err := os.ReadFile(filepath.Join(dir, ModelDescriptorFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model descriptor: %w", err)
	}
	named, _, err := ReadTensorFile(filepath.Join(dir, ModelTensorsFile))
	if err != nil {
		return nil, nil, err
	}
	tensors := make([]*tensor.Tensor, len(named))
	for i := range tensors {
		t, ok := named[tensorName(i)]
		if !ok {
			return nil, nil, fmt.Errorf("%w: missing tensor %s", ErrBadTensorFile, tensorName(i))
		}
		tensors[i] = t
	}
	return descriptor, tensors, nil
}

func tensorName(i int) string {
	return fmt.Sprintf("t%04d", i)
}
