package main

func main() {
	// console flags first, everything else reads them
	InitFlag()
	// install the signal listener before any work starts
	InitSafeExit()
	// configuration
	InitConf(configPath)
	// logging
	InitLog()
	// run the tiling task
	InitTask()
}
