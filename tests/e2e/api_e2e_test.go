package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/config"
	"github.com/routinelog/internal/db"
	"github.com/routinelog/internal/router"
	"github.com/routinelog/internal/service"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type e2eSuite struct {
	handler  http.Handler
	public   httpClient
	member   httpClient
	baseURL  string
	password string
	user     db.User
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type localClient struct {
	handler http.Handler
	jar     http.CookieJar
}

func newLocalClient(handler http.Handler, withJar bool) *localClient {
	var jar http.CookieJar
	if withJar {
		if j, err := cookiejar.New(nil); err == nil {
			jar = j
		}
	}
	return &localClient{handler: handler, jar: jar}
}

func (c *localClient) Do(req *http.Request) (*http.Response, error) {
	if c.jar != nil {
		for _, cookie := range c.jar.Cookies(req.URL) {
			req.AddCookie(cookie)
		}
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	resp := w.Result()
	if c.jar != nil {
		c.jar.SetCookies(req.URL, resp.Cookies())
	}
	return resp, nil
}

type scriptedCoach struct{}

func (scriptedCoach) GenerateReply(_ context.Context, _ service.CoachInput) (service.CoachResult, error) {
	return service.CoachResult{
		Content:          "先把目标定在每天 10 分钟。",
		PromptTokens:     30,
		CompletionTokens: 12,
	}, nil
}

func TestE2E_AllInterfaces(t *testing.T) {
	suite := newE2ESuite(t)
	suite.login(t)

	t.Run("auth boundary", suite.testAuthBoundary)
	t.Run("routines and completions", suite.testRoutinesAndCompletions)
	t.Run("profile and rebuild", suite.testProfileAndRebuild)
	t.Run("quota endpoint", suite.testQuotaEndpoint)
	t.Run("groups and challenges", suite.testGroupsAndChallenges)
	t.Run("coach conversations", suite.testCoachConversations)
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := gdb.AutoMigrate(
		&db.User{},
		&db.Routine{},
		&db.CompletionRecord{},
		&db.QuotaUsage{},
		&db.Group{},
		&db.GroupMember{},
		&db.Challenge{},
		&db.ChallengeParticipant{},
		&db.ChallengeCheckin{},
		&db.Conversation{},
		&db.ConversationMessage{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	db.DB = gdb

	hashed, err := bcrypt.GenerateFromPassword([]byte("e2e-secret"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := db.User{Username: "runner", Password: string(hashed), Plan: db.PlanFree}
	if err := db.DB.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	engine, api := router.SetupRouter(config.AppConfig{
		SessionSecret: "test-session-secret",
		GinMode:       gin.TestMode,
	})
	api.Coach().SetGenerator(scriptedCoach{})

	return &e2eSuite{
		handler:  engine,
		public:   newLocalClient(engine, false),
		member:   newLocalClient(engine, true),
		baseURL:  "https://example.test",
		password: "e2e-secret",
		user:     user,
	}
}

func (s *e2eSuite) login(t *testing.T) {
	t.Helper()
	resp := s.mustRequestJSON(t, s.member, http.MethodPost, "/api/login", map[string]interface{}{
		"username": s.user.Username,
		"password": s.password,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed, status %d, body=%s", resp.StatusCode, readBody(t, resp))
	}
}

func (s *e2eSuite) testAuthBoundary(t *testing.T) {
	resp := s.mustRequest(t, s.public, http.MethodGet, "/ping", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ping: expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "pong") {
		t.Fatalf("ping: unexpected body %q", body)
	}

	// 未登录访问业务接口应 401
	resp = s.mustRequest(t, s.public, http.MethodGet, "/api/routines", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated request expected 401, got %d", resp.StatusCode)
	}
}

func (s *e2eSuite) testRoutinesAndCompletions(t *testing.T) {
	resp := s.mustRequestJSON(t, s.member, http.MethodPost, "/api/routines", map[string]interface{}{
		"name":     "晨跑",
		"type_tag": "health",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create routine expected 201, got %d, body=%s", resp.StatusCode, readBody(t, resp))
	}
	var created struct {
		Routine struct {
			ID uint `json:"id"`
		} `json:"routine"`
	}
	decodeJSON(t, resp, &created)
	if created.Routine.ID == 0 {
		t.Fatal("create routine returned empty id")
	}
	routinePath := "/api/routines/" + idStr(created.Routine.ID)

	// 连续三天打卡
	var last struct {
		Streak           int `json:"streak"`
		LongestStreak    int `json:"longest_streak"`
		TotalCompletions int `json:"total_completions"`
		StreakSnapshot   int `json:"streak_snapshot"`
	}
	for _, date := range []string{"2026-01-10", "2026-01-11", "2026-01-12"} {
		resp = s.mustRequestJSON(t, s.member, http.MethodPost, routinePath+"/completions", map[string]interface{}{
			"date": date,
		})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("record completion expected 201, got %d, body=%s", resp.StatusCode, readBody(t, resp))
		}
		decodeJSON(t, resp, &last)
	}
	if last.Streak != 3 || last.LongestStreak != 3 || last.TotalCompletions != 3 {
		t.Fatalf("unexpected aggregates after 3 days: %+v", last)
	}
	if last.StreakSnapshot != 3 {
		t.Fatalf("expected snapshot 3, got %d", last.StreakSnapshot)
	}

	// 同日重复打卡冲突
	resp = s.mustRequestJSON(t, s.member, http.MethodPost, routinePath+"/completions", map[string]interface{}{
		"date": "2026-01-12",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate completion expected 409, got %d", resp.StatusCode)
	}

	// 撤销最新一天后连胜回落
	resp = s.mustRequest(t, s.member, http.MethodDelete, routinePath+"/completions/2026-01-12", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove completion expected 200, got %d, body=%s", resp.StatusCode, readBody(t, resp))
	}
	var removed struct {
		Streak        int `json:"streak"`
		LongestStreak int `json:"longest_streak"`
	}
	decodeJSON(t, resp, &removed)
	if removed.Streak != 2 || removed.LongestStreak != 3 {
		t.Fatalf("unexpected aggregates after undo: %+v", removed)
	}

	resp = s.mustRequest(t, s.member, http.MethodGet, routinePath+"/completions?start=2026-01-01&end=2026-01-31", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list completions expected 200, got %d", resp.StatusCode)
	}
	var listed struct {
		Completions []struct {
			Date string `json:"date"`
		} `json:"completions"`
	}
	decodeJSON(t, resp, &listed)
	if len(listed.Completions) != 2 {
		t.Fatalf("expected 2 completions in range, got %d", len(listed.Completions))
	}

	resp = s.mustRequest(t, s.member, http.MethodGet, "/api/heatmap?start=2026-01-01&end=2026-01-31", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("heatmap expected 200, got %d", resp.StatusCode)
	}
	var heatmap struct {
		Days []struct {
			Date string `json:"date"`
		} `json:"days"`
		Summary struct {
			TotalCompletions int `json:"total_completions"`
		} `json:"summary"`
	}
	decodeJSON(t, resp, &heatmap)
	if len(heatmap.Days) != 2 || heatmap.Summary.TotalCompletions != 2 {
		t.Fatalf("unexpected heatmap: %+v", heatmap)
	}

	// 仍有打卡记录的例行不能硬删除
	resp = s.mustRequest(t, s.member, http.MethodDelete, routinePath, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete routine with completions expected 409, got %d", resp.StatusCode)
	}
}

func (s *e2eSuite) testProfileAndRebuild(t *testing.T) {
	resp := s.mustRequest(t, s.member, http.MethodGet, "/api/profile", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile expected 200, got %d", resp.StatusCode)
	}
	var profile struct {
		Username         string `json:"username"`
		Plan             string `json:"plan"`
		CurrentStreak    int    `json:"current_streak"`
		TotalCompletions int    `json:"total_completions"`
	}
	decodeJSON(t, resp, &profile)
	if profile.Username != s.user.Username || profile.Plan != db.PlanFree {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if profile.CurrentStreak != 2 || profile.TotalCompletions != 2 {
		t.Fatalf("unexpected rollups: %+v", profile)
	}

	resp = s.mustRequest(t, s.member, http.MethodPost, "/api/profile/rebuild", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rebuild expected 200, got %d", resp.StatusCode)
	}

	// 重建后读数不变
	resp = s.mustRequest(t, s.member, http.MethodGet, "/api/profile", nil)
	defer resp.Body.Close()
	decodeJSON(t, resp, &profile)
	if profile.CurrentStreak != 2 || profile.TotalCompletions != 2 {
		t.Fatalf("rebuild changed rollups: %+v", profile)
	}
}

func (s *e2eSuite) testQuotaEndpoint(t *testing.T) {
	resp := s.mustRequest(t, s.member, http.MethodGet, "/api/quota/coach_session", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("quota check expected 200, got %d", resp.StatusCode)
	}
	var decision struct {
		Resource string `json:"resource"`
		Allowed  bool   `json:"allowed"`
		Ceiling  int    `json:"ceiling"`
		Window   string `json:"window"`
		ResetAt  string `json:"reset_at"`
	}
	decodeJSON(t, resp, &decision)
	if !decision.Allowed || decision.Ceiling != 3 || decision.Window != "daily" {
		t.Fatalf("unexpected quota decision: %+v", decision)
	}
	if decision.ResetAt == "" {
		t.Fatal("expected reset_at in response")
	}

	resp = s.mustRequest(t, s.member, http.MethodGet, "/api/quota/video_render", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown resource expected 400, got %d", resp.StatusCode)
	}
}

func (s *e2eSuite) testGroupsAndChallenges(t *testing.T) {
	resp := s.mustRequestJSON(t, s.member, http.MethodPost, "/api/groups", map[string]interface{}{
		"name": "晨跑小组",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group expected 201, got %d, body=%s", resp.StatusCode, readBody(t, resp))
	}
	var groupCreated struct {
		Group struct {
			ID          uint `json:"id"`
			MemberCount int  `json:"member_count"`
		} `json:"group"`
	}
	decodeJSON(t, resp, &groupCreated)
	if groupCreated.Group.MemberCount != 1 {
		t.Fatalf("expected creator membership, got count %d", groupCreated.Group.MemberCount)
	}

	// 创建者重复加入冲突
	resp = s.mustRequest(t, s.member, http.MethodPost, "/api/groups/"+idStr(groupCreated.Group.ID)+"/join", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate join expected 409, got %d", resp.StatusCode)
	}

	resp = s.mustRequestJSON(t, s.member, http.MethodPost, "/api/challenges", map[string]interface{}{
		"name": "21 天早睡",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create challenge expected 201, got %d", resp.StatusCode)
	}
	var challengeCreated struct {
		Challenge struct {
			ID uint `json:"id"`
		} `json:"challenge"`
	}
	decodeJSON(t, resp, &challengeCreated)
	challengePath := "/api/challenges/" + idStr(challengeCreated.Challenge.ID)

	resp = s.mustRequest(t, s.member, http.MethodPost, challengePath+"/join", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		t.Fatalf("join challenge failed, status %d, body=%s", resp.StatusCode, readBody(t, resp))
	}

	for _, date := range []string{"2026-02-01", "2026-02-02"} {
		resp = s.mustRequestJSON(t, s.member, http.MethodPost, challengePath+"/checkins", map[string]interface{}{
			"date": date,
		})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("checkin expected 201, got %d, body=%s", resp.StatusCode, readBody(t, resp))
		}
	}

	resp = s.mustRequest(t, s.member, http.MethodDelete, challengePath+"/checkins/2026-02-02", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove checkin expected 200, got %d", resp.StatusCode)
	}
}

func (s *e2eSuite) testCoachConversations(t *testing.T) {
	resp := s.mustRequestJSON(t, s.member, http.MethodPost, "/api/conversations", map[string]interface{}{
		"title": "断卡求助",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start conversation expected 201, got %d, body=%s", resp.StatusCode, readBody(t, resp))
	}
	var started struct {
		ConversationID string `json:"conversation_id"`
	}
	decodeJSON(t, resp, &started)
	if started.ConversationID == "" {
		t.Fatal("expected conversation id")
	}
	messagesPath := "/api/conversations/" + started.ConversationID + "/messages"

	resp = s.mustRequestJSON(t, s.member, http.MethodPost, messagesPath, map[string]interface{}{
		"message": "周末总是断卡怎么办？",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ask coach expected 200, got %d, body=%s", resp.StatusCode, readBody(t, resp))
	}
	var asked struct {
		Reply        string `json:"reply"`
		ReplyHTML    string `json:"reply_html"`
		MessageCount int    `json:"message_count"`
	}
	decodeJSON(t, resp, &asked)
	if asked.Reply == "" || asked.ReplyHTML == "" || asked.MessageCount != 2 {
		t.Fatalf("unexpected ask response: %+v", asked)
	}

	resp = s.mustRequest(t, s.member, http.MethodGet, messagesPath, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list messages expected 200, got %d", resp.StatusCode)
	}
	var listed struct {
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	decodeJSON(t, resp, &listed)
	if len(listed.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(listed.Messages))
	}

	resp = s.mustRequest(t, s.member, http.MethodGet, "/api/conversations", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list conversations expected 200, got %d", resp.StatusCode)
	}

	// free 档每天 3 次会话，第 4 次应 429 并带重置时刻
	for i := 0; i < 2; i++ {
		resp = s.mustRequestJSON(t, s.member, http.MethodPost, "/api/conversations", map[string]interface{}{})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("start conversation %d expected 201, got %d", i+2, resp.StatusCode)
		}
	}
	resp = s.mustRequestJSON(t, s.member, http.MethodPost, "/api/conversations", map[string]interface{}{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("exhausted session quota expected 429, got %d", resp.StatusCode)
	}
	var rejected struct {
		Resource string `json:"resource"`
		ResetAt  string `json:"reset_at"`
	}
	decodeJSON(t, resp, &rejected)
	if rejected.Resource != "coach_session" || rejected.ResetAt == "" {
		t.Fatalf("unexpected quota rejection payload: %+v", rejected)
	}
}

func (s *e2eSuite) mustRequest(t *testing.T, client httpClient, method, path string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		t.Fatalf("failed to build request %s %s: %v", method, path, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func (s *e2eSuite) mustRequestJSON(t *testing.T, client httpClient, method, path string, payload map[string]interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req, err := http.NewRequest(method, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to build request %s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	body := readBody(t, resp)
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		t.Fatalf("failed to decode json: %v\nbody=%s", err, body)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(data)
}

func idStr(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
