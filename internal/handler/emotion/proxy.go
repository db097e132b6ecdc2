package emotion

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/date-rehearsal/backend/internal/config"
	"github.com/zhouzirui/date-rehearsal/backend/pkg/utils"
)

const maxBodyBytes = 10 << 20

// ProxyHandler 把浏览器的情绪分析请求转发到第三方接口，凭证只保存在服务端。
type ProxyHandler struct {
	upstream string
	apiKey   string
	configID string
	client   *http.Client
}

// NewProxyHandler 创建代理处理器
func NewProxyHandler(cfg config.EmotionConfig) *ProxyHandler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ProxyHandler{
		upstream: cfg.UpstreamURL,
		apiKey:   cfg.APIKey,
		configID: cfg.ConfigID,
		client:   &http.Client{Timeout: timeout},
	}
}

// RegisterRoutes 注册代理路由
func (h *ProxyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/emotion", h.handleProxy)
}

func (h *ProxyHandler) handleProxy(w http.ResponseWriter, r *http.Request) {
	if h.apiKey == "" {
		// 401 让客户端按鉴权错误处理
		utils.RespondError(w, http.StatusUnauthorized, "emotion api key not configured")
		return
	}

	target, err := url.Parse(h.upstream)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "invalid upstream url")
		return
	}
	query := target.Query()
	for key, values := range r.URL.Query() {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	if h.configID != "" && query.Get("configId") == "" {
		query.Set("configId", h.configID)
	}
	target.RawQuery = query.Encode()

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target.String(), http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to build upstream request")
		return
	}
	upstreamReq.Header.Set("Content-Type", r.Header.Get("Content-Type"))
	upstreamReq.Header.Set("Accept", "application/json")
	upstreamReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	upstreamReq.Header.Set("X-Hume-Api-Key", h.apiKey)

	resp, err := h.client.Do(upstreamReq)
	if err != nil {
		log.Printf("[emotion] proxy upstream failed: %v", err)
		utils.RespondError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer resp.Body.Close()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("[emotion] proxy copy failed: %v", err)
	}
}
