// Package collector 정리 도구의 보고서를 웹소켓으로 받아 대시보드에 제공한다.
package collector

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/loggo"

	"persistclean/cleanup"
	"persistclean/host"
	"persistclean/reporting"
)

var logger = loggo.GetLogger("persistclean.collector")

// Hub 호스트별 최신 보고서를 보관하고 새 보고서를 연결된 대시보드에 전달
type Hub struct {
	token    string
	upgrader websocket.Upgrader
	now      func() time.Time

	// 호스트 이름별 최신 보고서
	reportsMutex sync.RWMutex
	reports      map[string]reporting.Entry

	// 연결된 대시보드
	dashboardsMutex sync.Mutex
	dashboards      map[*websocket.Conn]bool
}

// NewHub Hub 생성. 토큰이 비어 있으면 인증 검사 안 함
func NewHub(token string) *Hub {
	return &Hub{
		token: token,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 대시보드는 같은 관리망에서만 접근
			},
		},
		now:        time.Now,
		reports:    make(map[string]reporting.Entry),
		dashboards: make(map[*websocket.Conn]bool),
	}
}

// Handler 수집 서버 엔드포인트 라우팅
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(reporting.Path, h.handleAgentConnections)
	mux.HandleFunc("/ws-dashboard", h.handleDashboardConnections)
	mux.HandleFunc("/reports", h.handleReports)
	return mux
}

// authorized 헤더 또는 token 쿼리 값으로 인증 (브라우저 웹소켓은 헤더를 못 붙임)
func (h *Hub) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	return r.Header.Get(reporting.TokenHeader) == h.token || r.URL.Query().Get("token") == h.token
}

func (h *Hub) handleAgentConnections(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		logger.Warningf("잘못된 토큰으로 접속 거부: %s", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("WebSocket 업그레이드 실패: %v", err)
		return
	}
	defer ws.Close()

	for {
		var msg reporting.Message
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warningf("예상치 못한 연결 종료: %v", err)
			}
			return
		}

		switch msg.Type {
		case reporting.MsgTypeReport:
			ack := reporting.Message{Type: reporting.MsgTypeAck}
			if msg.Info == nil || msg.Summary == nil || msg.Info.Hostname == "" {
				logger.Warningf("잘못된 보고서 메시지: info=%v", msg.Info)
				ack.Error = "report needs info and summary"
			} else {
				h.store(*msg.Info, *msg.Summary)
			}
			if err := ws.WriteJSON(ack); err != nil {
				logger.Errorf("응답 전송 실패: %v", err)
				return
			}
		default:
			logger.Warningf("알 수 없는 메시지 타입: %s", msg.Type)
		}
	}
}

func (h *Hub) store(info host.Info, summary cleanup.Summary) {
	entry := reporting.Entry{Info: info, Summary: summary, ReceivedAt: h.now().UTC()}
	h.reportsMutex.Lock()
	h.reports[info.Hostname] = entry
	h.reportsMutex.Unlock()

	logger.Infof("보고서 수신: 호스트=%s, 삭제=%d, 실패=%d", info.Hostname, summary.Deleted, summary.Failed)
	h.broadcast(reporting.Message{Type: reporting.MsgTypeReportAdded, Reports: []reporting.Entry{entry}})
}

// Reports 보관된 보고서를 호스트 이름순으로 반환
func (h *Hub) Reports() []reporting.Entry {
	h.reportsMutex.RLock()
	entries := make([]reporting.Entry, 0, len(h.reports))
	for _, e := range h.reports {
		entries = append(entries, e)
	}
	h.reportsMutex.RUnlock()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Info.Hostname < entries[j].Info.Hostname
	})
	return entries
}

func (h *Hub) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Reports()); err != nil {
		logger.Errorf("보고서 목록 전송 실패: %v", err)
	}
}

func (h *Hub) handleDashboardConnections(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		logger.Warningf("잘못된 토큰으로 대시보드 접속 거부: %s", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("WebSocket 업그레이드 실패: %v", err)
		return
	}
	defer ws.Close()

	h.dashboardsMutex.Lock()
	h.dashboards[ws] = true
	err = ws.WriteJSON(reporting.Message{Type: reporting.MsgTypeReportList, Reports: h.Reports()})
	h.dashboardsMutex.Unlock()
	if err != nil {
		logger.Errorf("보고서 목록 전송 실패: %v", err)
	}
	logger.Infof("새 대시보드 연결됨")

	defer func() {
		h.dashboardsMutex.Lock()
		delete(h.dashboards, ws)
		h.dashboardsMutex.Unlock()
		logger.Infof("대시보드 연결 해제")
	}()

	// 대시보드는 읽기 전용; 연결이 끊길 때까지 읽기만 함
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// broadcast 모든 대시보드에 메시지 전송
func (h *Hub) broadcast(msg reporting.Message) {
	h.dashboardsMutex.Lock()
	defer h.dashboardsMutex.Unlock()
	for dashboard := range h.dashboards {
		if err := dashboard.WriteJSON(msg); err != nil {
			logger.Warningf("대시보드 전송 실패: %v", err)
		}
	}
}
