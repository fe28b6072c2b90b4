package detectors

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/daulet/tokenizers"
	onnxruntime "github.com/yalue/onnxruntime_go"

	"github.com/hannes/gliner-gate/detection"
)

const maxSequenceLength = 512

// ONNXDetector runs an in-process token-classification NER model through
// ONNX Runtime. Tokens are decoded with BIO tags from the model's label
// map; consecutive tokens of one entity are grouped into a span whose score
// is the mean softmax confidence of its tokens.
type ONNXDetector struct {
	name      string
	modelPath string
	tokenizer *tokenizers.Tokenizer
	id2label  map[string]string
	numLabels int

	// The session owns fixed-size tensors, so inference is serialized.
	mu           sync.Mutex
	session      *onnxruntime.AdvancedSession
	inputTensor  *onnxruntime.Tensor[int64]
	maskTensor   *onnxruntime.Tensor[int64]
	outputTensor *onnxruntime.Tensor[float32]
}

// labelMapFile mirrors the label_mappings.json shipped next to the model.
type labelMapFile struct {
	ID2Label map[string]string `json:"id2label"`
}

// safeUintToInt converts a uint offset to int with bounds checking.
func safeUintToInt(val uint) int {
	const maxInt = int(^uint(0) >> 1)
	if val <= uint(maxInt) {
		// #nosec G115 - Safe conversion with bounds checking
		return int(val)
	}
	return maxInt
}

// NewONNXDetector loads the tokenizer and label map and prepares a detector
// for the model at modelPath. The ONNX Runtime session itself is created
// lazily on first use.
func NewONNXDetector(name, modelPath, tokenizerPath, labelMapPath string) (*ONNXDetector, error) {
	if err := ensureRuntime(); err != nil {
		return nil, err
	}

	tk, err := tokenizers.FromFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	data, err := os.ReadFile(labelMapPath) // #nosec G304 - path comes from service config
	if err != nil {
		if closeErr := tk.Close(); closeErr != nil {
			log.Printf("[ONNXDetector] Failed to close tokenizer during cleanup: %v", closeErr)
		}
		return nil, fmt.Errorf("load label map: %w", err)
	}
	var labelMap labelMapFile
	if err := json.Unmarshal(data, &labelMap); err != nil {
		if closeErr := tk.Close(); closeErr != nil {
			log.Printf("[ONNXDetector] Failed to close tokenizer during cleanup: %v", closeErr)
		}
		return nil, fmt.Errorf("parse label map: %w", err)
	}

	// Label IDs are 0-indexed; the tensor width is max ID + 1.
	numLabels := 0
	for idStr := range labelMap.ID2Label {
		var id int
		if _, err := fmt.Sscanf(idStr, "%d", &id); err == nil && id >= numLabels {
			numLabels = id + 1
		}
	}
	if numLabels == 0 {
		if closeErr := tk.Close(); closeErr != nil {
			log.Printf("[ONNXDetector] Failed to close tokenizer during cleanup: %v", closeErr)
		}
		return nil, fmt.Errorf("label map %s contains no labels", labelMapPath)
	}

	return &ONNXDetector{
		name:      name,
		modelPath: modelPath,
		tokenizer: tk,
		id2label:  labelMap.ID2Label,
		numLabels: numLabels,
	}, nil
}

// ensureRuntime points ONNX Runtime at its shared library and initializes
// the environment once per process.
func ensureRuntime() error {
	if onnxruntime.IsInitialized() {
		return nil
	}
	if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
		onnxruntime.SetSharedLibraryPath(libPath)
	}
	if err := onnxruntime.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize ONNX Runtime: %w", err)
	}
	return nil
}

// GetName returns the configured detector name.
func (d *ONNXDetector) GetName() string {
	return d.name
}

// Predict tokenizes the text, runs the model, and decodes spans for the
// requested labels above the threshold.
func (d *ONNXDetector) Predict(ctx context.Context, text string, labels []string, threshold float64) ([]detection.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoding := d.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnOffsets())
	tokenIDs := encoding.IDs
	offsets := encoding.Offsets
	if len(tokenIDs) > maxSequenceLength {
		tokenIDs = tokenIDs[:maxSequenceLength]
		offsets = offsets[:maxSequenceLength]
	}

	inputIDs := make([]int64, len(tokenIDs))
	attentionMask := make([]int64, len(tokenIDs))
	for i := range tokenIDs {
		inputIDs[i] = int64(tokenIDs[i])
		attentionMask[i] = 1
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		if err := d.initializeSession(); err != nil {
			return nil, fmt.Errorf("initialize session: %w", err)
		}
	}

	d.fillInputTensors(inputIDs, attentionMask)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run inference: %w", err)
	}

	return d.decodeSpans(text, len(tokenIDs), offsets, labels, threshold), nil
}

// decodeSpans walks the per-token logits, groups B-/I- tagged tokens into
// entities, and filters by the requested labels and threshold.
func (d *ONNXDetector) decodeSpans(text string, numTokens int, offsets []tokenizers.Offset, labels []string, threshold float64) []detection.Entity {
	outputData := d.outputTensor.GetData()
	requested := labelSet(labels)

	var entities []detection.Entity
	var current *detection.Entity
	var currentTokens []int

	flush := func() {
		if current == nil {
			return
		}
		d.finalizeSpan(current, currentTokens, text, offsets)
		if current.End > current.Start && current.Score >= threshold &&
			(requested == nil || requested[strings.ToLower(current.Label)]) {
			entities = append(entities, *current)
		}
		current = nil
		currentTokens = nil
	}

	for i := 0; i < numTokens; i++ {
		startIdx := i * d.numLabels
		endIdx := startIdx + d.numLabels
		if endIdx > len(outputData) {
			break
		}
		label, confidence := bestLabel(outputData[startIdx:endIdx], d.id2label)

		isBeginning := strings.HasPrefix(label, "B-")
		isInside := strings.HasPrefix(label, "I-")
		baseLabel := strings.TrimPrefix(strings.TrimPrefix(label, "B-"), "I-")

		switch {
		case label != "O" && (isBeginning || current == nil):
			flush()
			current = &detection.Entity{
				Label: strings.ToLower(baseLabel),
				Score: confidence,
			}
			currentTokens = []int{i}
		case label != "O" && isInside && current != nil && current.Label == strings.ToLower(baseLabel):
			currentTokens = append(currentTokens, i)
			current.Score = (current.Score + confidence) / 2
		default:
			flush()
		}
	}
	flush()

	return entities
}

// bestLabel picks the argmax label for one token and its softmax confidence.
func bestLabel(logits []float32, id2label map[string]string) (string, float64) {
	maxLogit := float64(-math.MaxFloat64)
	bestClass := 0
	for j, logit := range logits {
		if float64(logit) > maxLogit {
			maxLogit = float64(logit)
			bestClass = j
		}
	}

	var sum float64
	for _, logit := range logits {
		sum += math.Exp(float64(logit) - maxLogit)
	}
	confidence := 1.0 / sum

	label, ok := id2label[fmt.Sprintf("%d", bestClass)]
	if !ok {
		label = "O"
	}
	return label, confidence
}

// finalizeSpan fills the span offsets and text from its token range.
func (d *ONNXDetector) finalizeSpan(entity *detection.Entity, tokenIndices []int, text string, offsets []tokenizers.Offset) {
	if len(tokenIndices) == 0 {
		return
	}
	start := offsets[tokenIndices[0]]
	end := offsets[tokenIndices[len(tokenIndices)-1]]
	entity.Start = safeUintToInt(start[0])
	entity.End = safeUintToInt(end[1])
	if entity.Start < entity.End && entity.End <= len(text) {
		entity.Text = text[entity.Start:entity.End]
	}
}

// initializeSession creates the fixed-shape tensors and the inference
// session. Caller holds d.mu.
func (d *ONNXDetector) initializeSession() error {
	inputShape := onnxruntime.NewShape(1, maxSequenceLength)
	inputTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSequenceLength))
	if err != nil {
		return fmt.Errorf("create input tensor: %w", err)
	}

	maskTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSequenceLength))
	if err != nil {
		destroyTensors(inputTensor)
		return fmt.Errorf("create mask tensor: %w", err)
	}

	outputShape := onnxruntime.NewShape(1, maxSequenceLength, int64(d.numLabels))
	outputTensor, err := onnxruntime.NewEmptyTensor[float32](outputShape)
	if err != nil {
		destroyTensors(inputTensor, maskTensor)
		return fmt.Errorf("create output tensor: %w", err)
	}

	session, err := onnxruntime.NewAdvancedSession(d.modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]onnxruntime.Value{inputTensor, maskTensor},
		[]onnxruntime.Value{outputTensor},
		nil)
	if err != nil {
		destroyTensors(inputTensor, maskTensor)
		if destroyErr := outputTensor.Destroy(); destroyErr != nil {
			log.Printf("[ONNXDetector] Failed to destroy output tensor during cleanup: %v", destroyErr)
		}
		return fmt.Errorf("create session: %w", err)
	}

	d.session = session
	d.inputTensor = inputTensor
	d.maskTensor = maskTensor
	d.outputTensor = outputTensor
	return nil
}

func destroyTensors(tensors ...*onnxruntime.Tensor[int64]) {
	for _, t := range tensors {
		if err := t.Destroy(); err != nil {
			log.Printf("[ONNXDetector] Failed to destroy tensor during cleanup: %v", err)
		}
	}
}

// fillInputTensors writes the token IDs and attention mask into the session
// tensors, zero-padding to the fixed shape. Caller holds d.mu.
func (d *ONNXDetector) fillInputTensors(inputIDs, attentionMask []int64) {
	inputData := d.inputTensor.GetData()
	maskData := d.maskTensor.GetData()
	for i := range inputData {
		inputData[i] = 0
		maskData[i] = 0
	}
	copy(inputData, inputIDs)
	copy(maskData, attentionMask)
}

// Close releases the session, tensors, and tokenizer. The ONNX Runtime
// environment itself stays up; other detectors may share it.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy session: %w", err))
		}
		d.session = nil
	}
	for _, t := range []*onnxruntime.Tensor[int64]{d.inputTensor, d.maskTensor} {
		if t != nil {
			if err := t.Destroy(); err != nil {
				errs = append(errs, fmt.Errorf("destroy tensor: %w", err))
			}
		}
	}
	d.inputTensor = nil
	d.maskTensor = nil
	if d.outputTensor != nil {
		if err := d.outputTensor.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy output tensor: %w", err))
		}
		d.outputTensor = nil
	}
	if d.tokenizer != nil {
		if err := d.tokenizer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tokenizer: %w", err))
		}
		d.tokenizer = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
