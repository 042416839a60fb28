// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package statemachine

// Precedence is the deterministic order applied when several commands are
// pending in the same admission cycle. Commands listed earlier win; commands
// not listed rank behind all listed ones and among themselves by arrival
// order. ABORT must stay first for the standard's priority rule to hold.
type Precedence []Command

// DefaultPrecedence is ABORT > STOP > HOLD > everything else in arrival order.
var DefaultPrecedence = Precedence{CommandAbort, CommandStop, CommandHold}

// rank returns the position of cmd in the precedence list, or len(p) if the
// command is unranked.
func (p Precedence) rank(cmd Command) int {
	for i, c := range p {
		if c == cmd {
			return i
		}
	}

	return len(p)
}

// Select returns the index of the winning command among pending. Ties between
// unranked commands go to the earliest arrival.
func (p Precedence) Select(pending []Command) int {
	winner := 0
	for i := 1; i < len(pending); i++ {
		if p.rank(pending[i]) < p.rank(pending[winner]) {
			winner = i
		}
	}

	return winner
}
