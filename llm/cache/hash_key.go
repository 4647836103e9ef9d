package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/flowcore/llm"
)

// GenerateKey 生成 Hash 缓存键
func GenerateKey(prefix string, req *llm.Request) string {
	data, err := json.Marshal(struct {
		Model        string  `json:"model"`
		SystemPrompt string  `json:"system_prompt"`
		Input        any     `json:"input"`
		Temperature  float64 `json:"temperature"`
		MaxTokens    int     `json:"max_tokens"`
	}{
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Input:        req.Input,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		// fallback: 使用 fmt.Sprintf 生成确定性字符串避免 key 碰撞
		data = []byte(fmt.Sprintf("%s|%s|%v|%v|%d", req.Model, req.SystemPrompt, req.Input, req.Temperature, req.MaxTokens))
	}
	hash := sha256.Sum256(data)
	return prefix + hex.EncodeToString(hash[:16]) // 使用前 16 字节
}
