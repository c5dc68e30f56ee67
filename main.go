package main

import "TrackShelf/cmd"

func main() {
	cmd.Execute()
}
