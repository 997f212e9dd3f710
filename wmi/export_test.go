package wmi

var ReturnValue = returnValue
