package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/amrbekhit/mimasprog"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var commands = map[string]func(*mimasprog.Flash, []string){
	"id":     processReadID,
	"status": processReadStatus,
	"read":   processRead,
	"erase":  processErase,
}

const appVersion = "0.1.0"

func main() {
	version := flag.Bool("version", false, "Prints the program version.")
	port := flag.String("port", "", "Serial port name. Defaults to the last port used.")
	verify := flag.Bool("verify", false, "Read back and compare the flash after programming. Defaults to the last setting used.")
	hexFile := flag.Bool("hex", false, "Parse the file as Intel HEX (.hex, .mcs) instead of programming it byte for byte.")
	list := flag.Bool("list", false, "List the available serial ports.")
	verbose := flag.Bool("v", false, "Enable verbose logging.")
	settingsPath := flag.String("settings", defaultSettingsPath(), "Settings file remembering the last port, file and verify option.")
	before := flag.String("before", "", "Command to run before programming.")
	after := flag.String("after", "", "Command to run after programming has been completed successfully.")

	cmdList := []string{}
	for key := range commands {
		cmdList = append(cmdList, key)
	}
	command := flag.String("cmd", "", fmt.Sprintf("Command to run, one of: %+v\n"+
		"read has the usage: read addr length, e.g. read 0x1000 32\n"+
		"erase has the usage: erase endaddr, e.g. erase 0x20000",
		cmdList))

	flag.Parse()

	if *version {
		fmt.Println(appVersion)
		return
	}

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	mimasprog.SetLogger(log.StandardLogger())

	if *list {
		listPorts()
		return
	}

	saved, err := loadSettings(*settingsPath)
	if err != nil {
		log.Warnf("%v", err)
	}

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if *port == "" {
		*port = saved.Port
	}
	if !explicit["verify"] {
		*verify = saved.Verify
	}

	if *port == "" {
		log.Fatal("must specify port")
	}

	ch, err := mimasprog.OpenChannel(*port)
	if err != nil {
		log.Fatalf("failed to open port: %v", err)
	}

	if *command != "" {
		// Run a single command
		f, ok := commands[*command]
		if !ok {
			ch.Close()
			log.Fatalf("invalid command %v", *command)
		}
		flash, release := openFlash(ch)
		f(flash, flag.Args())
		release()
		ch.Close()
		return
	}

	// Program a bitstream file
	file := saved.File
	if len(flag.Args()) == 1 {
		file = flag.Args()[0]
	}
	if file == "" {
		ch.Close()
		log.Fatalf("must specify bitstream file to program")
	}

	if err := runHook("before", *before); err != nil {
		ch.Close()
		log.Fatal(err)
	}

	format := mimasprog.FormatRaw
	if *hexFile {
		format = mimasprog.FormatHex
	}

	prog := mimasprog.NewProgrammer(mimasprog.Job{
		Channel:  ch,
		FileName: file,
		Format:   format,
		Listener: newConsoleListener(os.Stdout),
		Verify:   *verify,
	})

	log.Infof("checking board on %v...", *port)
	if !prog.Detect() {
		ch.Close()
		log.Fatalf("no Mimas V2 board found on %v", *port)
	}

	if err := <-prog.Start(); err != nil {
		// The listener has already printed the error.
		os.Exit(1)
	}
	log.Infof("complete")

	if err := saveSettings(*settingsPath, settings{Port: *port, File: file, Verify: *verify}); err != nil {
		log.Warnf("%v", err)
	}

	if err := runHook("after", *after); err != nil {
		log.Fatal(err)
	}
}

func runHook(name, cmd string) error {
	if cmd == "" {
		return nil
	}
	log.Infof("running %v command...", name)
	return errors.Wrapf(exec.Command(cmd).Run(), "failed to run %v command", name)
}
