package com

import (
	"context"
	"time"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/juju/errors"
)

// Create progID 자동화 객체를 만들고 IDispatch 반환. 아파트먼트 스레드에서만 호출
func Create(progID string) (*ole.IDispatch, error) {
	unknown, err := oleutil.CreateObject(progID)
	if err != nil {
		return nil, errors.Annotatef(err, "creating %s", progID)
	}
	defer unknown.Release()
	disp, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, errors.Annotatef(err, "querying IDispatch of %s", progID)
	}
	return disp, nil
}

// Call disp의 method를 호출하고 돌려받은 IDispatch 반환. 아파트먼트 스레드에서만 호출
func Call(disp *ole.IDispatch, method string, args ...interface{}) (*ole.IDispatch, error) {
	v, err := oleutil.CallMethod(disp, method, args...)
	if err != nil {
		return nil, err
	}
	out := v.ToIDispatch()
	if out == nil {
		v.Clear()
		return nil, errors.Errorf("%s returned no object", method)
	}
	return out, nil
}

// Invoke disp의 method를 호출하고 결과는 버림. 아파트먼트 스레드에서만 호출
func Invoke(disp *ole.IDispatch, method string, args ...interface{}) error {
	v, err := oleutil.CallMethod(disp, method, args...)
	if err != nil {
		return err
	}
	return v.Clear()
}

// Each COM 컬렉션의 항목 수집. 열거자가 넘겨준 참조를 그대로 호출자가 소유한다.
// 아파트먼트 스레드에서만 호출
func Each(collection *ole.IDispatch) ([]*ole.IDispatch, error) {
	var items []*ole.IDispatch
	err := oleutil.ForEach(collection, func(v *ole.VARIANT) error {
		item := v.ToIDispatch()
		if item == nil {
			return nil
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		ReleaseAll(items)
		return nil, err
	}
	return items, nil
}

// ReleaseAll items 중 nil이 아닌 객체 모두 해제
func ReleaseAll(items []*ole.IDispatch) {
	for _, item := range items {
		if item != nil {
			item.Release()
		}
	}
}

// releaseTimeout 멈춘 아파트먼트 때문에 정리가 끝없이 기다리지 않도록 하는 제한 시간
const releaseTimeout = 5 * time.Second

// Release 아파트먼트 스레드에서 items 해제
func (a *Apartment) Release(items ...*ole.IDispatch) error {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	return a.Do(ctx, func() error {
		ReleaseAll(items)
		return nil
	})
}
