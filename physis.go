// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package physis reads and writes the SqPack asset archives of a game
// install: index resolution, data-file block decoding, the structured
// asset codecs (models, textures, Excel sheets) and the incremental patch
// applier.
//
// The usual entry point is GameData, which addresses assets by their
// logical slash-delimited path:
//
//	game, err := physis.NewGameData("C:/game", nil)
//	if err != nil { ... }
//	game.ReloadRepositories()
//	data, err := game.Extract("exd/root.exl")
//
// The codecs (MDL, Texture, EXH, EXD, EXL) operate on the extracted byte
// buffers and are independent of GameData.
package physis
