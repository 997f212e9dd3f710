// Package com 전용 COM 아파트먼트에서 go-ole 호출을 실행하고 COM 실패를 juju/errors 타입으로 분류한다.
package com

import (
	"strings"

	"github.com/go-ole/go-ole"
	"github.com/juju/errors"
)

// 정리 도구가 구분하는 HRESULT와 WBEM 상태 코드
const (
	hrFileNotFound   = 0x80070002
	hrPathNotFound   = 0x80070003
	hrAccessDenied   = 0x80070005
	hrDispException  = 0x80020009
	wbemNotFound     = 0x80041002
	wbemAccessDenied = 0x80041003
)

// Code err가 가진 가장 구체적인 상태 코드 반환.
// 디스패치 예외면 EXCEPINFO의 SCODE, 아니면 HRESULT
func Code(err error) (uint32, bool) {
	var oleErr *ole.OleError
	if !errors.As(err, &oleErr) {
		return 0, false
	}
	code := uint32(oleErr.Code())
	if code == hrDispException {
		if info, ok := oleErr.SubError().(ole.EXCEPINFO); ok && info.SCODE() != 0 {
			code = info.SCODE()
		}
	}
	return code, true
}

// Classify err에 what을 붙이고 상태 코드에 따라 not found 또는 forbidden으로 표시.
// 저장소가 준 메시지는 그대로 남긴다.
func Classify(err error, what string) error {
	if err == nil {
		return nil
	}
	code, ok := Code(err)
	if !ok {
		return errors.Annotate(err, what)
	}
	msg := message(err)
	switch code {
	case hrFileNotFound, hrPathNotFound, wbemNotFound:
		return errors.NotFoundf("%s: %s", what, msg)
	case hrAccessDenied, wbemAccessDenied:
		return errors.Annotatef(errors.Forbidden, "%s: %s", what, msg)
	}
	return errors.Errorf("%s: %s (0x%08X)", what, msg, code)
}

func message(err error) string {
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) {
		if info, ok := oleErr.SubError().(ole.EXCEPINFO); ok {
			if s := strings.TrimSpace(info.String()); s != "" {
				return s
			}
		}
		if s := strings.TrimSpace(oleErr.Description()); s != "" {
			return s
		}
		return strings.TrimSpace(oleErr.String())
	}
	return err.Error()
}
