// Package reporting 끝난 정리 보고서를 수집 서버로 전송한다.
package reporting

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"persistclean/cleanup"
	"persistclean/host"
)

var logger = loggo.GetLogger("persistclean.reporting")

// MessageType 메시지 타입
type MessageType string

const (
	MsgTypeReport      MessageType = "cleanup_report"
	MsgTypeAck         MessageType = "ack"
	MsgTypeReportList  MessageType = "report_list"
	MsgTypeReportAdded MessageType = "report_added"
)

// Path 정리 도구가 연결하는 수집 서버 엔드포인트
const Path = "/ws-agent"

// TokenHeader 공유 인증 토큰 헤더
const TokenHeader = "X-Auth-Token"

// Message 수집 서버와 주고받는 메시지 구조체
type Message struct {
	Type      MessageType      `json:"type"`
	Info      *host.Info       `json:"info,omitempty"`
	Summary   *cleanup.Summary `json:"summary,omitempty"`
	Timestamp time.Time        `json:"timestamp,omitempty"`
	Reports   []Entry          `json:"reports,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Entry 수집 서버가 보관한 보고서 하나
type Entry struct {
	Info       host.Info       `json:"info"`
	Summary    cleanup.Summary `json:"summary"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Send addr의 수집 서버로 요약을 보내고 응답을 기다림
func Send(ctx context.Context, addr, token string, info host.Info, summary cleanup.Summary) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	header := http.Header{}
	if token != "" {
		header.Set(TokenHeader, token)
	}
	logger.Debugf("%s 연결 중", u.String())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return errors.Annotatef(err, "dialing %s", u.String())
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}
	msg := Message{
		Type:      MsgTypeReport,
		Info:      &info,
		Summary:   &summary,
		Timestamp: time.Now().UTC(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		return errors.Annotate(err, "sending report")
	}
	var ack Message
	if err := conn.ReadJSON(&ack); err != nil {
		return errors.Annotate(err, "reading acknowledgement")
	}
	if ack.Type != MsgTypeAck {
		return errors.Errorf("unexpected reply %q", ack.Type)
	}
	if ack.Error != "" {
		return errors.Errorf("collector rejected report: %s", ack.Error)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}
