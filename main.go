/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/daffahilmyf/go-imagegen/cmd"

func main() {
	cmd.Execute()
}
