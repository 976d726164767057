package utils

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

var panicFilename = "panic_dump"

// MyRecover swallows a panic on the current goroutine, logs the stack and
// dumps it to a file so a crash in one stream never takes the daemon down.
func MyRecover() {
	if err := recover(); err != nil {
		var buf [4096]byte
		n := runtime.Stack(buf[:], false)
		log.Errorf("Recovered from panic: %v\n%s", err, string(buf[:n]))
		_ = DumpPanicInfo(fmt.Sprintf("%v", err) + "\n" + string(buf[:n]))
	}
}

// DumpPanicInfo writes panic details to a timestamped file in the working
// directory.
func DumpPanicInfo(info string) error {
	currentTime := time.Now()
	fileSuffix := currentTime.Format("20060102150405") + "_" + strconv.FormatInt(currentTime.Unix(), 10)
	fileName := panicFilename + "_" + fileSuffix
	log.Infof("Dumping panic info to %v...", fileName)
	err := os.WriteFile(fileName, []byte(info), 0666)
	if err != nil {
		log.Errorf("Unable to write panic file %v", fileName)
		return err
	}
	return nil
}
