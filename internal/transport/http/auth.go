package httptransport

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	jwtpkg "mailwatch/internal/auth/jwt"
	"mailwatch/internal/config"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	cfg        config.AuthConfig
	jwtManager *jwtpkg.Manager
	log        *zap.Logger
}

// NewAuthHandler 创建新的认证处理器实例
func NewAuthHandler(cfg config.AuthConfig, jwtManager *jwtpkg.Manager, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		cfg:        cfg,
		jwtManager: jwtManager,
		log:        log.Named("auth"),
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Username    string `json:"username"`
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// Login godoc
// @Summary 管理员登录
// @Description 使用用户名和密码进行身份验证，成功后返回访问令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录凭证"
// @Success 200 {object} Response{data=loginResponse} "登录成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "用户名或密码错误"
// @Failure 403 {object} Response "认证未配置"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	if h.jwtManager == nil {
		Forbidden(c, MsgAuthDisabled)
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	// 用户名常量时间比较，密码校验 bcrypt 哈希
	usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.AdminUser)) == 1
	passwordErr := bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminPasswordHash), []byte(req.Password))
	if !usernameOK || passwordErr != nil {
		h.log.Warn("login rejected",
			zap.String("username", req.Username),
			zap.String("ip", c.ClientIP()),
		)
		Unauthorized(c, MsgInvalidCredentials)
		return
	}

	token, err := h.jwtManager.GenerateToken(req.Username)
	if err != nil {
		h.log.Error("failed to generate token", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	h.log.Info("admin logged in",
		zap.String("username", req.Username),
		zap.String("ip", c.ClientIP()),
	)

	Success(c, loginResponse{
		Username:    req.Username,
		AccessToken: token.Token,
		ExpiresIn:   token.ExpiresIn,
	})
}
