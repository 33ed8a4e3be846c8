// Copyright the Quiche authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package termio

// FormattedText is a single chunk of text, with an optional ANSI escape
// applied when it is rendered to a terminal canvas.
type FormattedText struct {
	text   []rune
	escape AnsiEscape
}

// NewFormattedText constructs a chunk of text rendered with the given
// escape.
func NewFormattedText(text string, escape AnsiEscape) FormattedText {
	return FormattedText{[]rune(text), escape}
}

// NewText constructs an unformatted chunk of text.
func NewText(text string) FormattedText {
	return FormattedText{[]rune(text), NewAnsiEscape()}
}

// Len returns the number of visible characters in this chunk.
func (p *FormattedText) Len() uint {
	return uint(len(p.text))
}

// Format replaces the escape used to render this chunk.
func (p *FormattedText) Format(escape AnsiEscape) {
	p.escape = escape
}

// Clip restricts this chunk to the half-open [start,end) sub-range of its
// characters, clamping to the chunk's actual length.
func (p *FormattedText) Clip(start, end uint) {
	if end > uint(len(p.text)) {
		end = uint(len(p.text))
	}

	if start > end {
		start = end
	}

	p.text = p.text[start:end]
}

// Bytes renders this chunk, wrapping it in its escape (and a trailing
// reset) when one has been applied.
func (p *FormattedText) Bytes() []byte {
	if p.escape.count == 0 {
		return []byte(string(p.text))
	}

	return []byte(p.escape.Build() + string(p.text) + ResetAnsiEscape().Build())
}
