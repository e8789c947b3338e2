package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailwatch/internal/config"
)

// WebhookSignature 回调签名校验中间件
//
// 对原始请求体计算 HMAC-SHA256，与 X-Webhook-Signature 头中的
// 十六进制摘要做常量时间比较。校验在任何业务处理之前完成：
// 签名非法的请求不会触达存储层。
func WebhookSignature(cfg config.WebhookConfig, log *zap.Logger) gin.HandlerFunc {
	log = log.Named("webhook")

	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "webhooks are disabled",
			})
			c.Abort()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "failed to read request body",
			})
			c.Abort()
			return
		}
		// 签名针对原始字节计算，读完后恢复给后续的 JSON 绑定
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		signature := c.GetHeader("X-Webhook-Signature")
		if !verifySignature(body, signature, cfg.Secret) {
			log.Warn("invalid webhook signature",
				zap.String("ip", c.ClientIP()),
				zap.Int("body_bytes", len(body)),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid signature",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// verifySignature 常量时间比较十六进制 HMAC-SHA256 摘要
func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
