// Copyright 2021 The corejs Authors
// This file is part of the corejs library.
//
// The corejs library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The corejs library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the corejs library. If not, see <http://www.gnu.org/licenses/>.

package isolate

import (
	"fmt"

	"github.com/probeum/corejs/queue"
)

const bootstrapFilename = "corejs/bootstrap.js"

// bootstrapSource installs the JS-side half of the op protocol: the
// per-op-id async handler table (core.setAsyncHandler) and the single
// receive callback (registered once, here) that knows how to mirror the
// shared queue's flat layout and fall back to the single-record overflow
// path. None of this is native; it is plain JS run once during isolate
// init, matching spec.md 4.6 step 1.
var bootstrapSource = fmt.Sprintf(`(function(global) {
  "use strict";

  var HEADER_WORDS = 3 + %d; // idxOffsets + MaxRecords
  var IDX_NUM_RECORDS = 0;
  var IDX_NUM_SHIFTED_OFF = 1;
  var IDX_HEAD = 2;
  var IDX_OFFSETS = 3;
  var HEADER_BYTES = HEADER_WORDS * 4;

  var core = global.core;
  var asyncHandlers = Object.create(null);

  function dispatchAsync(opId, payload) {
    var handler = asyncHandlers[opId];
    if (handler) {
      handler(payload);
    }
  }

  function drainQueue() {
    var buf = core.shared;
    var view = new DataView(buf);
    var numRecords = view.getUint32(IDX_NUM_RECORDS * 4, true);
    var numShifted = view.getUint32(IDX_NUM_SHIFTED_OFF * 4, true);
    while (numShifted < numRecords) {
      var begin = numShifted === 0 ? 0 : view.getUint32((IDX_OFFSETS + numShifted - 1) * 4, true);
      var end = view.getUint32((IDX_OFFSETS + numShifted) * 4, true);
      var opId = view.getUint32(HEADER_BYTES + begin, true);
      var payload = new Uint8Array(buf, HEADER_BYTES + begin + 4, end - begin - 4);
      dispatchAsync(opId, payload);
      numShifted++;
      view.setUint32(IDX_NUM_SHIFTED_OFF * 4, numShifted, true);
    }
    // Collapse back to empty once every record has been shifted, mirroring
    // Queue.Reset on the native side: the next native Push must start from
    // NUM_RECORDS == HEAD == 0, not keep appending after a stale count.
    view.setUint32(IDX_NUM_RECORDS * 4, 0, true);
    view.setUint32(IDX_NUM_SHIFTED_OFF * 4, 0, true);
    view.setUint32(IDX_HEAD * 4, 0, true);
  }

  core.recv(function(opId, payload) {
    if (opId === undefined) {
      drainQueue();
    } else {
      dispatchAsync(opId, payload);
    }
  });

  core.setAsyncHandler = function(opId, fn) {
    asyncHandlers[opId] = fn;
  };
})(this);
`, queue.MaxRecords)
