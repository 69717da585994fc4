package mimasprog

import (
	"fmt"
	"log"
)

type printListener struct{}

func (printListener) InitProgress(max int)     {}
func (printListener) UpdateProgress(value int) {}
func (printListener) LogMessage(text string)   { fmt.Println(text) }
func (printListener) ErrorMessage(text string) { fmt.Println("error:", text) }
func (printListener) UpdateTitle(text string)  { fmt.Println(text) }
func (printListener) ProgrammingFinished()     {}

func Example() {
	// Open the board's serial port with the bridge's fixed settings
	ch, err := OpenChannel("/dev/ttyACM0")
	if err != nil {
		log.Fatalf("failed to open port: %v", err)
	}

	// Create a programmer for the bitstream. It closes the channel when the run ends.
	prog := NewProgrammer(Job{
		Channel:  ch,
		FileName: "top.bin",
		Listener: printListener{},
		Verify:   true,
	})

	// Make sure the right board is attached before erasing anything
	if !prog.Detect() {
		ch.Close()
		log.Fatal("no Mimas V2 board found")
	}

	// Program on a separate goroutine and wait for the result
	if err := <-prog.Start(); err != nil {
		log.Fatal(err)
	}
	log.Print("complete")
}
