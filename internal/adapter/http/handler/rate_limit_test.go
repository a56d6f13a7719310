package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	"fastap/internal/adapter/http/handler"
	"fastap/internal/adapter/http/routes"
	"fastap/pkg/config"
	"fastap/pkg/test/factory"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

func (s *AccountHandlerSuite) limitedRouter() *gin.Engine {
	cfg := config.GetDefaultConfig()
	limiter := config.NewRateLimiter(zap.NewNop(), nil, config.WithLimits(cfg.RateLimitConfigs))

	return routes.SetupRouter(routes.HandlersConfig{
		Accounts:       s.Service,
		AccountHandler: handler.NewAccountHandler(s.Service),
		SessionHandler: handler.NewSessionHandler(s.Service),
	}, cfg, nil, config.NewNopLogger(), limiter)
}

func serve(router *gin.Engine, method, path, body string, configure func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	if configure != nil {
		configure(req)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	return rr
}

func (s *AccountHandlerSuite) TestRateLimit_LoginWindowIgnoresSpoofedForwardedFor() {
	router := s.limitedRouter()

	codes := []int{}
	for i := 0; i < 12; i++ {
		rr := serve(router, "POST", "/user/login", `{"username": "ghost1", "password": "Wrong1"}`, func(req *http.Request) {
			req.Header.Set("X-Forwarded-For", "203.0.113."+strconv.Itoa(i))
			req.Header.Set("X-Real-IP", "198.51.100."+strconv.Itoa(i))
		})
		codes = append(codes, rr.Code)
	}

	Expect(codes[:10]).ToNot(ContainElement(http.StatusTooManyRequests))
	Expect(codes[10:]).To(Equal([]int{http.StatusTooManyRequests, http.StatusTooManyRequests}))
}

func (s *AccountHandlerSuite) TestRateLimit_QueryFormChangePasswordIsLimited() {
	router := s.limitedRouter()

	for i := 0; i < 6; i++ {
		rr := serve(router, "POST", "/user/change-password?token=garbage", `{"newPassword": "Changed1"}`, nil)

		if i < 5 {
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			Expect(rr.Header().Get("X-RateLimit-Limit")).To(Equal("5"))
		} else {
			Expect(rr.Code).To(Equal(http.StatusTooManyRequests))
		}
	}
}

func (s *AccountHandlerSuite) TestRateLimit_PrivateRoutesAreLimitedPerAccount() {
	router := s.limitedRouter()

	cookies := []*http.Cookie{}
	for i := 0; i < 11; i++ {
		account := factory.NewAccount()
		_, err := s.Repo.Create(context.Background(), account)
		s.Require().NoError(err)

		cookies = append(cookies, s.login(account.Username, factory.DefaultPassword))
	}

	withCookie := func(cookie *http.Cookie) func(*http.Request) {
		return func(req *http.Request) { req.AddCookie(cookie) }
	}

	for _, cookie := range cookies {
		rr := serve(router, "PUT", "/user/modify", `{"name": "Renamed User"}`, withCookie(cookie))

		Expect(rr.Code).To(Equal(http.StatusOK), rr.Body.String())
		Expect(rr.Header().Get("X-RateLimit-Limit")).To(Equal("10"))
		Expect(rr.Header().Get("X-RateLimit-Remaining")).To(Equal("9"))
	}

	for i := 0; i < 9; i++ {
		rr := serve(router, "PUT", "/user/modify", `{"name": "Renamed User"}`, withCookie(cookies[0]))
		Expect(rr.Code).To(Equal(http.StatusOK))
	}

	rr := serve(router, "PUT", "/user/modify", `{"name": "Renamed User"}`, withCookie(cookies[0]))
	Expect(rr.Code).To(Equal(http.StatusTooManyRequests))

	rr = serve(router, "PUT", "/user/modify", `{"name": "Renamed User"}`, withCookie(cookies[1]))
	Expect(rr.Code).To(Equal(http.StatusOK))

	rr = serve(router, "PUT", "/user/modify", `{"name": "Renamed User"}`, nil)
	Expect(rr.Code).To(Equal(http.StatusUnauthorized))
}
