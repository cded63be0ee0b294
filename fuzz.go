// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package physis

func Fuzz(data []byte) int {
	interesting := 0
	if _, err := ParseIndex(data); err == nil {
		interesting = 1
	}
	if _, err := ParseTexture(data); err == nil {
		interesting = 1
	}
	if _, err := ParseMDL(data); err == nil {
		interesting = 1
	}
	if _, err := ParseEXH(data); err == nil {
		interesting = 1
	}
	if _, err := ParseEXL(data); err == nil {
		interesting = 1
	}
	return interesting
}
