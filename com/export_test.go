package com

var StartWith = start
