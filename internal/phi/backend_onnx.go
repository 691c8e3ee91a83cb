//go:build onnx
// +build onnx

package phi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// onnxBackend implements NERBackend with a token-classification model run
// through ONNX Runtime. Alongside the .onnx file it expects vocab.txt (one
// token per line) and labels.json (class index -> BIO tag, e.g. "B-PERSON").
type onnxBackend struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	vocab      map[string]int64
	labels     []string
	unkID      int64
	logger     *zap.Logger
	ready      bool
	mu         sync.RWMutex
}

// NewNERBackend initializes the ONNX Runtime backend. Requires build tag 'onnx'.
func NewNERBackend(logger *zap.Logger, modelPath string) NERBackend {
	// Allow user to provide shared library path via environment variable.
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("ONNX Runtime environment init failed", zap.Error(err))
		return nil
	}

	dir := filepath.Dir(modelPath)
	vocab, unkID, err := loadVocab(filepath.Join(dir, "vocab.txt"))
	if err != nil {
		logger.Error("Failed to load NER vocabulary", zap.Error(err))
		return nil
	}
	labels, err := loadLabels(filepath.Join(dir, "labels.json"))
	if err != nil {
		logger.Error("Failed to load NER label map", zap.Error(err))
		return nil
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		logger.Error("Failed to inspect ONNX model IO", zap.Error(err), zap.String("model", modelPath))
		return nil
	}
	if len(outputsInfo) == 0 {
		logger.Error("ONNX model reports no outputs", zap.String("model", modelPath))
		return nil
	}

	preferred := []string{"input_ids", "attention_mask"}
	available := map[string]bool{}
	for _, ii := range inputsInfo {
		available[strings.ToLower(ii.Name)] = true
	}
	var inputNames []string
	for _, name := range preferred {
		if available[name] {
			inputNames = append(inputNames, name)
		}
	}
	if len(inputNames) == 0 {
		sorted := make([]string, 0, len(inputsInfo))
		for _, ii := range inputsInfo {
			sorted = append(sorted, ii.Name)
		}
		sort.Strings(sorted)
		inputNames = sorted
	}

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputsInfo[0].Name}, nil)
	if err != nil {
		logger.Error("ONNX Runtime session creation failed", zap.Error(err), zap.String("model", modelPath))
		return nil
	}

	logger.Info("ONNX NER backend ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.Int("labels", len(labels)))
	return &onnxBackend{
		session:    sess,
		inputNames: inputNames,
		vocab:      vocab,
		labels:     labels,
		unkID:      unkID,
		logger:     logger,
		ready:      true,
	}
}

// Ready reports whether the backend is initialized.
func (b *onnxBackend) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready && b.session != nil
}

// Close releases session and environment resources.
func (b *onnxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	ort.DestroyEnvironment()
	b.ready = false
	return nil
}

// wordSpan is a whitespace-delimited token with its character offsets.
type wordSpan struct {
	text  string
	start int
	end   int
}

// Recognize runs the model and decodes BIO tags into character-offset spans.
func (b *onnxBackend) Recognize(ctx context.Context, text string) ([]Entity, error) {
	if !b.Ready() {
		return nil, fmt.Errorf("onnx backend not ready")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	words := splitWords(text)
	if len(words) == 0 {
		return nil, nil
	}

	seqLen := len(words)
	inputIDs := make([]int64, seqLen)
	attention := make([]int64, seqLen)
	for i, w := range words {
		id, ok := b.vocab[strings.ToLower(w.text)]
		if !ok {
			id = b.unkID
		}
		inputIDs[i] = id
		attention[i] = 1
	}

	shape := ort.NewShape(1, int64(seqLen))
	idsTensor, err := ort.NewTensor[int64](shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor[int64](shape, attention)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	inputs := make([]ort.Value, 0, len(b.inputNames))
	for _, rawName := range b.inputNames {
		if strings.Contains(strings.ToLower(rawName), "mask") {
			inputs = append(inputs, maskTensor)
		} else {
			inputs = append(inputs, idsTensor)
		}
	}

	outputs := make([]ort.Value, 1)
	if err := b.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	data := logits.GetData()
	numLabels := len(b.labels)
	if len(data) < seqLen*numLabels {
		return nil, fmt.Errorf("unexpected logits shape: %d values for %d tokens", len(data), seqLen)
	}

	tags := make([]string, seqLen)
	scores := make([]float64, seqLen)
	for i := 0; i < seqLen; i++ {
		offset := i * numLabels
		best, bestScore := 0, data[offset]
		for c := 1; c < numLabels; c++ {
			if data[offset+c] > bestScore {
				best, bestScore = c, data[offset+c]
			}
		}
		tags[i] = b.labels[best]
		scores[i] = float64(bestScore)
	}

	return decodeBIO(words, tags, scores), nil
}

// decodeBIO merges contiguous B-/I- tags into character-offset entities.
func decodeBIO(words []wordSpan, tags []string, scores []float64) []Entity {
	var entities []Entity
	var current *Entity
	var total float64
	var count int

	flush := func() {
		if current != nil && count > 0 {
			current.Score = total / float64(count)
			entities = append(entities, *current)
		}
		current, total, count = nil, 0, 0
	}

	for i, tag := range tags {
		switch {
		case strings.HasPrefix(tag, "B-"):
			flush()
			current = &Entity{Label: Label(tag[2:]), Start: words[i].start, End: words[i].end}
			total, count = scores[i], 1
		case strings.HasPrefix(tag, "I-") && current != nil && string(current.Label) == tag[2:]:
			current.End = words[i].end
			total += scores[i]
			count++
		default:
			flush()
		}
	}
	flush()
	return entities
}

func splitWords(text string) []wordSpan {
	var words []wordSpan
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, wordSpan{text: text[start:i], start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, wordSpan{text: text[start:], start: start, end: len(text)})
	}
	return words
}

func loadVocab(path string) (map[string]int64, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	vocab := make(map[string]int64)
	var unkID int64
	scanner := bufio.NewScanner(file)
	var id int64
	for scanner.Scan() {
		token := strings.TrimSpace(scanner.Text())
		if token == "" {
			continue
		}
		vocab[token] = id
		if token == "[UNK]" || token == "<unk>" {
			unkID = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	return vocab, unkID, nil
}

func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("labels.json must be a JSON array of BIO tags: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels.json declares no classes")
	}
	return labels, nil
}
