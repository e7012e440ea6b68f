/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package bmxutil

import (
	"encoding/hex"
	"sync"

	log "github.com/sirupsen/logrus"
)

var logLevel log.Level = log.InfoLevel
var logMtx sync.Mutex

func SetLogLevel(level log.Level) {
	logMtx.Lock()
	defer logMtx.Unlock()

	logLevel = level
	log.SetLevel(level)
}

func LogLevel() log.Level {
	logMtx.Lock()
	defer logMtx.Unlock()

	return logLevel
}

func LogLevelEnabled(level log.Level) bool {
	return LogLevel() >= level
}

// Logs a hex dump of the specified buffer at debug level.
func LogDump(prefix string, b []byte) {
	if !LogLevelEnabled(log.DebugLevel) {
		return
	}

	log.Debugf("%s (%d bytes)\n%s", prefix, len(b), hex.Dump(b))
}
