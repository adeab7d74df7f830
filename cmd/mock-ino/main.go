// mock-ino simulates an INO hotend controller board for testing the host
// without hardware. It speaks the NUL-framed serial protocol over a Unix
// socket; bridge it to a pty with socat to point ino-host at it:
//
//	mock-ino -socket /tmp/mock-ino &
//	socat pty,raw,echo=0,link=/tmp/ttyINO unix-connect:/tmp/mock-ino
//
// The simulated board runs its own PID loop against a first-order thermal
// model and reports "tick:" telemetry at the report interval. Supported
// commands: s, d, f, pid, kp, ki, kd, q, a, v.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	ambientTemp  = 25.0
	heaterGain   = 150.0 // degrees above ambient at full power
	thermalTau   = 20.0  // seconds
	reportPeriod = 300 * time.Millisecond

	// Error flag digit positions, leftmost first.
	flagOpenCircuit = 0
	flagNoHeartbeat = 1
	flagNoTempRead  = 4

	heartbeatTimeout = 3 * time.Second
)

// boardState is the simulated board.
type boardState struct {
	mu sync.Mutex

	temp     float64
	target   float64
	power    float64
	integral float64
	kp       float64
	ki       float64
	kd       float64
	lastErr  float64
	pwmFreq  int
	flags    [6]bool
	lastBeat time.Time
	tick     uint64
}

func newBoard() *boardState {
	return &boardState{
		temp:     ambientTemp,
		kp:       13.41,
		ki:       30.91,
		kd:       1.46,
		pwmFreq:  1000,
		lastBeat: time.Now(),
	}
}

// step advances the thermal model by dt and runs the onboard PID.
func (b *boardState) step(dt float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if time.Since(b.lastBeat) > heartbeatTimeout {
		b.flags[flagNoHeartbeat] = true
		b.target = 0
	}

	e := b.target - b.temp
	if b.target > 0 {
		b.integral += e * dt
		if b.integral < 0 {
			b.integral = 0
		}
		deriv := (e - b.lastErr) / dt
		b.lastErr = e
		out := (b.kp*e + b.ki*b.integral + b.kd*deriv) / 255.0
		if out < 0 {
			out = 0
		}
		if out > 1 {
			out = 1
		}
		b.power = out
	} else {
		b.power = 0
		b.integral = 0
		b.lastErr = 0
	}

	equilibrium := ambientTemp + b.power*heaterGain
	b.temp += (equilibrium - b.temp) * dt / thermalTau
	b.tick++
}

// telemetry renders one tick frame, NUL terminated.
func (b *boardState) telemetry() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	digits := make([]byte, 6)
	for i := range digits {
		digits[i] = '0'
		if b.flags[i] {
			digits[i] = '1'
		}
	}
	return fmt.Sprintf("tick:%d,T_a:%d,err:%s,pwm:%d\x00",
		b.tick, int(b.temp*100), digits, int(b.power*255))
}

// apply handles one command and returns an optional response frame.
func (b *boardState) apply(cmd string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	verb, arg, _ := strings.Cut(cmd, " ")
	switch verb {
	case "s":
		if v, err := strconv.Atoi(strings.TrimSpace(arg)); err == nil {
			b.target = float64(v)
		}
	case "d":
		b.lastBeat = time.Now()
		b.flags[flagNoHeartbeat] = false
	case "f":
		if v, err := strconv.Atoi(strings.TrimSpace(arg)); err == nil {
			b.pwmFreq = v
		}
	case "kp":
		if v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64); err == nil {
			b.kp = v
		}
	case "ki":
		if v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64); err == nil {
			b.ki = v
		}
	case "kd":
		if v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64); err == nil {
			b.kd = v
		}
	case "pid":
		// Autotune is out of scope for the mock; acknowledge only.
		return fmt.Sprintf("pid tune started at %s\x00", strings.TrimSpace(arg))
	case "q":
		for i := range b.flags {
			b.flags[i] = false
		}
	case "a":
		return fmt.Sprintf("kp:%g ki:%g kd:%g\x00", b.kp, b.ki, b.kd)
	case "v":
		return "INO firmware v2.1.0 (mock)\x00"
	default:
		return fmt.Sprintf("ERROR: unknown command %q\x00", cmd)
	}
	return ""
}

func main() {
	socketPath := flag.String("socket", "/tmp/mock-ino", "Unix socket path")
	verbose := flag.Bool("v", false, "Log every command")
	flag.Parse()

	os.Remove(*socketPath)
	ln, err := net.Listen("unix", *socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer ln.Close()
	defer os.Remove(*socketPath)

	fmt.Printf("mock-ino listening on %s\n", *socketPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		ln.Close()
		os.Remove(*socketPath)
		os.Exit(0)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		fmt.Println("host connected")
		handleConn(conn, *verbose)
		fmt.Println("host disconnected")
	}
}

func handleConn(conn net.Conn, verbose bool) {
	defer conn.Close()
	board := newBoard()

	done := make(chan struct{})
	var wg sync.WaitGroup

	// Telemetry loop.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(reportPeriod)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				board.step(now.Sub(last).Seconds())
				last = now
				if _, err := conn.Write([]byte(board.telemetry())); err != nil {
					return
				}
			}
		}
	}()

	// Command loop. Frames end with NUL; bodies may carry several
	// ";"-separated commands ("kp 1.0;ki 2.0;kd 3.0;q;").
	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := conn.Read(buf)
		if err != nil {
			break
		}
		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, 0)
			if i < 0 {
				break
			}
			frame := string(pending[:i])
			pending = pending[i+1:]
			for _, cmd := range strings.Split(frame, ";") {
				cmd = strings.TrimSpace(cmd)
				if cmd == "" {
					continue
				}
				if verbose {
					fmt.Printf("<- %s\n", cmd)
				}
				if resp := board.apply(cmd); resp != "" {
					if _, err := conn.Write([]byte(resp)); err != nil {
						break
					}
				}
			}
		}
	}

	close(done)
	wg.Wait()
}
